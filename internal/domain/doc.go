// Package domain defines the scheduled lesson, user preference and the
// error taxonomy shared by the store, repository, scanner and intake flow.
package domain
