package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"studybot/internal/domain"
)

func TestTablesHaveSameKeys(t *testing.T) {
	for k := range english {
		_, ok := arabic[k]
		assert.True(t, ok, "arabic missing %q", k)
	}
	for k := range arabic {
		_, ok := english[k]
		assert.True(t, ok, "english missing %q", k)
	}
}

func TestTranslate(t *testing.T) {
	c := New(domain.LanguageEnglish)

	assert.Equal(t, "Operation cancelled.", c.T(domain.LanguageEnglish, Cancel))
	assert.Equal(t, "تم إلغاء العملية.", c.T(domain.LanguageArabic, Cancel))
	assert.Equal(t, "Usage: /deletelesson <id>", c.T(domain.LanguageEnglish, DeleteUsage))
}

func TestTranslateWithArgs(t *testing.T) {
	c := New(domain.LanguageEnglish)

	got := c.T(domain.LanguageEnglish, ConfirmLesson, "2025-07-01", "08:00", "42", "Lesson 1")
	assert.Contains(t, got, "Date: 2025-07-01")
	assert.Contains(t, got, "Time: 08:00")
	assert.Contains(t, got, "Topic ID: 42")
	assert.Contains(t, got, "Lesson 1")

	got = c.T(domain.LanguageArabic, LessonSaved, "1234")
	assert.Contains(t, got, "1234")
}

func TestUnknownKeyRendersAsKey(t *testing.T) {
	c := New(domain.LanguageEnglish)
	assert.Equal(t, "no_such_key", c.T(domain.LanguageArabic, "no_such_key"))
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	c := New(domain.LanguageArabic)
	assert.Equal(t, arabic[Cancel], c.T("fr", Cancel))
}
