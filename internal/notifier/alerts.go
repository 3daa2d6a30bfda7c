package notifier

import (
	"fmt"
	"strings"
	"time"

	"studybot/internal/eventbus"
	kit "studybot/internal/transport"
)

const (
	PriorityInfo  = 5
	PriorityWarn  = 7
	PriorityAlert = 9
)

// alertFor maps a bus event to an ops notification. ok is false for events
// that do not concern operators.
func alertFor(e eventbus.Event, target kit.ChatTarget, loc *time.Location) (kit.Notification, bool) {
	le, isLesson := e.Data.(eventbus.LessonEvent)
	if !isLesson {
		return kit.Notification{}, false
	}
	when := le.At
	if loc != nil {
		when = when.In(loc)
	}
	var (
		b        strings.Builder
		priority int
	)
	switch e.Type {
	case eventbus.LessonDeliveryFailed:
		priority = PriorityWarn
		fmt.Fprintf(&b, "Lesson #%s could not be delivered", le.LessonID)
		if le.ChatID != 0 {
			fmt.Fprintf(&b, " to chat %d", le.ChatID)
		}
		fmt.Fprintf(&b, " (topic %d, due %s). It stays queued for the next scan.", le.TopicID, when.Format("2006-01-02 15:04"))
		if le.Error != "" {
			b.WriteString("\nError: " + le.Error)
		}
	case eventbus.LessonOrphaned:
		priority = PriorityAlert
		fmt.Fprintf(&b, "Lesson #%s missed its delivery window (due %s, topic %d). It remains stored but will not be posted.",
			le.LessonID, when.Format("2006-01-02 15:04"), le.TopicID)
	default:
		return kit.Notification{}, false
	}
	return kit.Notification{
		Channel:  "ops:" + e.Type + ":" + le.LessonID,
		Priority: priority,
		Target:   target,
		Text:     b.String(),
		Options:  &kit.SendOptions{DisablePreview: true},
	}, true
}

func prefixForPriority(p int) string {
	switch {
	case p >= PriorityAlert:
		return "🚨 "
	case p >= PriorityWarn:
		return "⚠️ "
	case p >= PriorityInfo:
		return "ℹ️ "
	default:
		return ""
	}
}
