package bot

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"studybot/internal/domain"
)

var arabicMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "الآن", DivBy: time.Second},
	{D: time.Minute, Format: "%s %d ثانية", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "%s دقيقة", DivBy: 1},
	{D: time.Hour, Format: "%s %d دقيقة", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "%s ساعة", DivBy: 1},
	{D: humanize.Day, Format: "%s %d ساعة", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "%s يوم", DivBy: 1},
	{D: humanize.Week, Format: "%s %d أيام", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "%s أسبوع", DivBy: 1},
	{D: humanize.Month, Format: "%s %d أسابيع", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "%s شهر", DivBy: 1},
	{D: humanize.Year, Format: "%s %d أشهر", DivBy: humanize.Month},
	{D: math.MaxInt64, Format: "%s أكثر من سنة", DivBy: 1},
}

// relative renders at relative to now ("in 3 hours" style).
func relative(lang domain.Language, at, now time.Time) string {
	if lang == domain.LanguageArabic {
		return humanize.CustomRelTime(at, now, "منذ", "بعد", arabicMagnitudes)
	}
	return humanize.RelTime(at, now, "ago", "from now")
}
