// Package storage persists the lesson and preference collections.
//
// Two drivers share one contract (Store):
//   - "file": lessons.json + users.json (+ a small meta file for the id
//     counter and an audit jsonl), rewritten atomically on every save
//   - "sqlite": one database file with lessons, preferences, meta and audit tables
//
// Load never fails hard: a missing or corrupt collection comes back empty and
// the cause is returned as a joined error for logging.
package storage
