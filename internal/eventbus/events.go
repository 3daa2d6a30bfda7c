package eventbus

import "time"

// Event types published by the repository and the dispatch scanner.
const (
	LessonAdded          = "lesson.added"
	LessonUpdated        = "lesson.updated"
	LessonDeleted        = "lesson.deleted"
	LessonDelivered      = "lesson.delivered"
	LessonDeliveryFailed = "lesson.delivery_failed"
	LessonOrphaned       = "lesson.orphaned"
	ScanCompleted        = "dispatch.scan"
	LanguageChanged      = "user.language"
)

// LessonEvent is the payload of every lesson.* event.
type LessonEvent struct {
	LessonID string    `json:"lesson_id"`
	At       time.Time `json:"at"`
	ChatID   int64     `json:"chat_id,omitempty"`
	TopicID  int       `json:"topic_id"`
	ActorID  int64     `json:"actor_id,omitempty"`
	Field    string    `json:"field,omitempty"`
	Error    string    `json:"error,omitempty"`
}
