package domain

import "strings"

// Language selects the translation table used for a user's replies.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"

	DefaultLanguage = LanguageEnglish
)

// ParseLanguage accepts "en"/"ar" (case-insensitive, optional "lang_" prefix).
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "lang_")
	switch Language(s) {
	case LanguageEnglish, LanguageArabic:
		return Language(s), true
	default:
		return "", false
	}
}

// Valid reports whether l is one of the canonical codes. Raw input goes
// through ParseLanguage first.
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageArabic
}

// Preference is the persisted per-user settings record.
type Preference struct {
	Language Language `json:"language"`
}
