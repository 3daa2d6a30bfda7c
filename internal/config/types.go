package config

// Config is the whole file-backed configuration. Durations are Go duration
// strings ("500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig  `json:"telegram"`
	Logging  LoggingConfig   `json:"logging"`
	Storage  StorageConfig   `json:"storage"`
	Dispatch DispatchConfig  `json:"dispatch"`
	Intake   IntakeConfig    `json:"intake"`
	Ops      OpsConfig       `json:"ops"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	// Token is never logged. BOT_TOKEN overrides it.
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout"`

	// DefaultChatID receives lessons that carry no chat of their own.
	// GROUP_CHAT_ID overrides it.
	DefaultChatID int64 `json:"default_chat_id"`

	// OpsChatID/OpsThreadID receive log records and delivery alerts.
	OpsChatID   int64 `json:"ops_chat_id,omitempty"`
	OpsThreadID int   `json:"ops_thread_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// LoggingTelegram mirrors records at or above MinLevel to the ops chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=trace debug info warn error"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// StorageConfig selects the durable store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/studybot.db" }
type StorageConfig struct {
	Driver string `json:"driver" validate:"omitempty,oneof=file sqlite"`
	// Path is the lessons document (file) or database file (sqlite).
	Path string `json:"path" validate:"required"`
	// PreferencesPath is only used by the file driver.
	PreferencesPath string `json:"preferences_path,omitempty"`
	BusyTimeout     string `json:"busy_timeout,omitempty"`
}

type DispatchConfig struct {
	// Enabled is a pointer so an omitted key keeps the default (on).
	Enabled         *bool  `json:"enabled,omitempty"`
	Interval        string `json:"interval"`
	FirstDelay      string `json:"first_delay"`
	DueWindow       string `json:"due_window"`
	DeliveryTimeout string `json:"delivery_timeout"`
	// MissedPolicy is "skip" (lessons past the window are dropped) or
	// "deliver" (late lessons are still posted).
	MissedPolicy string `json:"missed_policy" validate:"omitempty,oneof=skip deliver"`
	// Timezone is the IANA zone user input is interpreted in.
	Timezone string `json:"timezone"`

	RatePerSec    int    `json:"rate_per_sec" validate:"gte=0"`
	RetryMax      int    `json:"retry_max" validate:"gte=0,lte=10"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// IsEnabled treats an omitted flag as enabled.
func (d DispatchConfig) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

type IntakeConfig struct {
	SessionTTL      string `json:"session_ttl"`
	DefaultLanguage string `json:"default_language" validate:"omitempty,oneof=en ar"`
}

// OpsConfig controls the operator HTTP server (health, status, pprof).
//
// Prefer a loopback Addr. Non-loopback binds need a Token unless
// AllowInsecure is set.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// NotifierConfig controls ops-chat alerts for failed and orphaned lessons.
// An omitted section means enabled with defaults; alerts still need
// telegram.ops_chat_id.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	QueueSize       int    `json:"queue_size" validate:"gte=0"`
	RatePerSec      int    `json:"rate_per_sec" validate:"gte=0"`
	RetryMax        int    `json:"retry_max" validate:"gte=0,lte=10"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries" validate:"gte=0"`
}

// NotifierOrDefault returns the notifier section, filling in defaults when
// it was omitted.
func (c *Config) NotifierOrDefault() NotifierConfig {
	if c == nil || c.Notifier == nil {
		return defaultNotifier
	}
	return *c.Notifier
}
