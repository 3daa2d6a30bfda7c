package storage

import (
	"fmt"
	"time"

	"studybot/internal/domain"
)

// lessonRecord is the on-disk shape of a lesson. Absent image and chat are
// written as null.
type lessonRecord struct {
	Text        string  `json:"text"`
	ImageFileID *string `json:"image_file_id"`
	DateTime    string  `json:"datetime"`
	TopicID     int     `json:"topic_id"`
	UserID      int64   `json:"user_id"`
	GroupChatID *int64  `json:"group_chat_id"`
}

func toRecord(l domain.Lesson) lessonRecord {
	r := lessonRecord{
		Text:     l.Text,
		DateTime: l.At.Format(time.RFC3339),
		TopicID:  l.TopicID,
		UserID:   l.UserID,
	}
	if l.HasImage() {
		img := l.ImageFileID
		r.ImageFileID = &img
	}
	if l.GroupChatID != 0 {
		chat := l.GroupChatID
		r.GroupChatID = &chat
	}
	return r
}

func fromRecord(id string, r lessonRecord) (domain.Lesson, error) {
	at, err := time.Parse(time.RFC3339, r.DateTime)
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("lesson %s: datetime %q: %w", id, r.DateTime, err)
	}
	l := domain.Lesson{
		ID:      id,
		Text:    r.Text,
		At:      at,
		TopicID: r.TopicID,
		UserID:  r.UserID,
	}
	if r.ImageFileID != nil {
		l.ImageFileID = *r.ImageFileID
	}
	if r.GroupChatID != nil {
		l.GroupChatID = *r.GroupChatID
	}
	return l, nil
}

func toRecords(lessons map[string]domain.Lesson) map[string]lessonRecord {
	out := make(map[string]lessonRecord, len(lessons))
	for id, l := range lessons {
		out[id] = toRecord(l)
	}
	return out
}

type metaRecord struct {
	NextID uint64 `json:"next_id"`
}
