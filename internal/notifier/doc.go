// Package notifier posts operator alerts to the ops chat.
//
// It listens on the event bus for lessons that failed to deliver or were
// orphaned by the scanner, formats a short alert and sends it through an
// async queue with a token-bucket rate limit, bounded retry and a dedup
// window so a lesson failing on every scan alerts once per window.
//
// A small in-memory history of sent alerts backs the ops /status page.
package notifier
