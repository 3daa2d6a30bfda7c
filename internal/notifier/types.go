package notifier

import (
	"time"

	kit "studybot/internal/transport"
)

type Config struct {
	Enabled bool
	// Target is the ops chat. A zero ChatID disables sending.
	Target          kit.ChatTarget
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Stats counts alert outcomes since start.
type Stats struct {
	Queued  uint64 `json:"queued"`
	Sent    uint64 `json:"sent"`
	Deduped uint64 `json:"deduped"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}
