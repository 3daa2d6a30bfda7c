// Package i18n renders the bot's user-facing texts in English or Arabic.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"studybot/internal/domain"
)

// Catalog is immutable after New and safe for concurrent use.
type Catalog struct {
	fallback domain.Language
	printers map[domain.Language]*message.Printer
	known    map[string]struct{}
}

var tags = map[domain.Language]language.Tag{
	domain.LanguageEnglish: language.English,
	domain.LanguageArabic:  language.Arabic,
}

// New builds the catalog. Languages without a translation for a key fall
// back to English.
func New(fallback domain.Language) *Catalog {
	if !fallback.Valid() {
		fallback = domain.DefaultLanguage
	}
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	known := map[string]struct{}{}
	for lang, table := range map[domain.Language]map[string]string{
		domain.LanguageEnglish: english,
		domain.LanguageArabic:  arabic,
	} {
		for key, msg := range table {
			// Only fails for malformed tags.
			_ = b.SetString(tags[lang], key, msg)
			known[key] = struct{}{}
		}
	}

	printers := make(map[domain.Language]*message.Printer, len(tags))
	for lang, tag := range tags {
		printers[lang] = message.NewPrinter(tag, message.Catalog(b))
	}
	return &Catalog{fallback: fallback, printers: printers, known: known}
}

// T renders key in lang. Unknown keys render as the key itself.
//
// The printer localizes numeric verbs (digit shapes, grouping), so ids and
// topic numbers must be passed pre-formatted as strings.
func (c *Catalog) T(lang domain.Language, key string, args ...any) string {
	if _, ok := c.known[key]; !ok {
		return key
	}
	p, ok := c.printers[lang]
	if !ok {
		p = c.printers[c.fallback]
	}
	return p.Sprintf(key, args...)
}

// Languages lists the supported languages in menu order.
func Languages() []domain.Language {
	return []domain.Language{domain.LanguageEnglish, domain.LanguageArabic}
}

// Label is the language's own name for selection buttons.
func Label(l domain.Language) string {
	switch l {
	case domain.LanguageArabic:
		return "🇸🇦 العربية"
	default:
		return "🇬🇧 English"
	}
}
