package domain

import (
	"strings"
	"time"
)

// Lesson is a timed message waiting to be posted to a group topic.
//
// ID is assigned by the repository and never reused. At always carries the
// bot's fixed location offset; comparisons must use absolute instants.
type Lesson struct {
	ID          string    `json:"id,omitempty"`
	Text        string    `json:"text" validate:"required"`
	ImageFileID string    `json:"image_file_id,omitempty"`
	At          time.Time `json:"datetime" validate:"required"`
	TopicID     int       `json:"topic_id" validate:"gte=0"`
	UserID      int64     `json:"user_id"`
	GroupChatID int64     `json:"group_chat_id,omitempty"`
}

// HasImage reports whether the lesson is posted as a photo with caption.
func (l Lesson) HasImage() bool { return strings.TrimSpace(l.ImageFileID) != "" }

// Preview returns the first n runes of the lesson text.
func (l Lesson) Preview(n int) string {
	rs := []rune(l.Text)
	if n <= 0 || len(rs) <= n {
		return l.Text
	}
	return string(rs[:n])
}

// Field names an editable lesson attribute.
type Field string

const (
	FieldText     Field = "text"
	FieldDateTime Field = "datetime"
	FieldTopic    Field = "topic_id"
	FieldImage    Field = "image_file_id"
)

// FieldFromChoice maps the numbered edit menu (1..4) to a field.
func FieldFromChoice(s string) (Field, bool) {
	switch strings.TrimSpace(s) {
	case "1", "1️⃣":
		return FieldText, true
	case "2", "2️⃣":
		return FieldDateTime, true
	case "3", "3️⃣":
		return FieldTopic, true
	case "4", "4️⃣":
		return FieldImage, true
	default:
		return "", false
	}
}

// Apply returns a copy of l with field set to value.
//
// Accepted value types: string for text and image (empty clears the image),
// time.Time for datetime, int for topic.
func (l Lesson) Apply(field Field, value any) (Lesson, error) {
	switch field {
	case FieldText:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return l, NewValidationError(string(field), ErrEmptyText)
		}
		l.Text = s
	case FieldDateTime:
		t, ok := value.(time.Time)
		if !ok || t.IsZero() {
			return l, NewValidationError(string(field), ErrInvalidDateTime)
		}
		l.At = t
	case FieldTopic:
		n, ok := value.(int)
		if !ok || n < 0 {
			return l, NewValidationError(string(field), ErrInvalidTopic)
		}
		l.TopicID = n
	case FieldImage:
		s, ok := value.(string)
		if !ok {
			return l, NewValidationError(string(field), ErrInvalidFormat)
		}
		l.ImageFileID = strings.TrimSpace(s)
	default:
		return l, NewValidationError(string(field), ErrUnknownField)
	}
	return l, nil
}
