package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const DefaultTimezone = "Europe/Berlin"

var defaultNotifier = NotifierConfig{
	Enabled:         true,
	QueueSize:       128,
	RatePerSec:      1,
	RetryMax:        3,
	RetryBase:       "500ms",
	RetryMaxDelay:   "10s",
	DedupWindow:     "10m",
	DedupMaxEntries: 1000,
}

// Default is the configuration used for every key a file leaves out.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Logging:  LoggingConfig{Level: "info", Console: true, Telegram: LoggingTelegram{MinLevel: "warn", RatePerSec: 1}},
		Storage: StorageConfig{
			Driver:          "file",
			Path:            "lessons.json",
			PreferencesPath: "user_preferences.json",
			BusyTimeout:     "5s",
		},
		Dispatch: DispatchConfig{
			Interval:        "1m",
			FirstDelay:      "10s",
			DueWindow:       "60s",
			DeliveryTimeout: "30s",
			MissedPolicy:    "skip",
			Timezone:        DefaultTimezone,
			RatePerSec:      20,
			RetryMax:        2,
			RetryBase:       "500ms",
			RetryMaxDelay:   "5s",
		},
		Intake: IntakeConfig{SessionTTL: "30m", DefaultLanguage: "en"},
		Ops:    OpsConfig{Addr: "127.0.0.1:6060", PprofPrefix: "/debug/pprof/"},
	}
}

// Env is the environment overlay. Set variables win over the file.
type Env struct {
	Token       string `envconfig:"BOT_TOKEN"`
	GroupChatID int64  `envconfig:"GROUP_CHAT_ID"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	Timezone    string `envconfig:"BOT_TIMEZONE"`
	DataPath    string `envconfig:"LESSONS_PATH"`
}

// ReadEnv reads the overlay from the process environment.
func ReadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, fmt.Errorf("env: %w", err)
	}
	return e, nil
}

// Apply overlays the non-empty variables onto cfg.
func (e Env) Apply(cfg *Config) {
	if e.Token != "" {
		cfg.Telegram.Token = e.Token
	}
	if e.GroupChatID != 0 {
		cfg.Telegram.DefaultChatID = e.GroupChatID
	}
	if e.LogLevel != "" {
		cfg.Logging.Level = e.LogLevel
	}
	if e.Timezone != "" {
		cfg.Dispatch.Timezone = e.Timezone
	}
	if e.DataPath != "" {
		cfg.Storage.Path = e.DataPath
	}
}
