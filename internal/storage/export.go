package storage

import (
	"bytes"
	"encoding/json"
	"time"

	"studybot/internal/domain"
)

type exportDocument struct {
	Lessons    map[string]lessonRecord `json:"lessons"`
	ExportDate string                  `json:"export_date"`
}

// EncodeExport renders the backup document: the lessons collection in its
// persisted shape plus the export timestamp.
func EncodeExport(lessons map[string]domain.Lesson, at time.Time) ([]byte, error) {
	return encodeJSON(exportDocument{Lessons: toRecords(lessons), ExportDate: at.Format(time.RFC3339)})
}

// DecodeExport parses a backup document back into lessons.
func DecodeExport(b []byte) (map[string]domain.Lesson, time.Time, error) {
	var doc exportDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, time.Time{}, err
	}
	at, _ := time.Parse(time.RFC3339, doc.ExportDate)
	out := make(map[string]domain.Lesson, len(doc.Lessons))
	for id, r := range doc.Lessons {
		l, err := fromRecord(id, r)
		if err != nil {
			return nil, at, err
		}
		out[id] = l
	}
	return out, at, nil
}

// ExportFileName is the attachment name for a backup taken at t.
func ExportFileName(t time.Time) string {
	return "lessons_backup_" + t.Format("20060102_150405") + ".json"
}

// encodeJSON writes human-readable, Unicode-preserving JSON (2-space indent,
// no HTML escaping).
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
