package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studybot/internal/domain"
)

// Config selects and configures a driver.
//
// Driver values: "file" (default) or "sqlite".
// For "file", Path is the lessons document and PreferencesPath the users
// document (default: users.json next to Path). For "sqlite", Path is the
// database file.
type Config struct {
	Driver          string
	Path            string
	PreferencesPath string
	BusyTimeout     time.Duration // sqlite only; 0 keeps the driver default
	// ReadOnly skips the writer lock; Save and AppendAudit then fail with
	// ErrReadOnly.
	ReadOnly bool
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Lessons     map[string]domain.Lesson
	Preferences map[string]domain.Preference // keyed by decimal user id
	// NextID is the last id handed out; 0 when never persisted.
	NextID uint64
}

// EmptySnapshot returns a snapshot with non-nil collections.
func EmptySnapshot() Snapshot {
	return Snapshot{Lessons: map[string]domain.Lesson{}, Preferences: map[string]domain.Preference{}}
}

// AuditEntry records one repository mutation.
type AuditEntry struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	ActorID  int64     `json:"actor_id,omitempty"`
	Action   string    `json:"action"`
	LessonID string    `json:"lesson_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// withDefaults fills the id and timestamp of an entry.
func (e AuditEntry) withDefaults() AuditEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return e
}

// Store is implemented by every driver. Implementations are safe for
// concurrent use, but the repository is the only intended caller.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
