package app

import (
	"strings"
	"time"

	"studybot/internal/config"
	"studybot/internal/delivery"
	"studybot/internal/dispatch"
	"studybot/internal/notifier"
	"studybot/internal/observability/ops"
	"studybot/internal/storage"
	kit "studybot/internal/transport"
	"studybot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		OpsChat: logx.OpsChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.OpsChatID,
			ThreadID:   cfg.Telegram.OpsThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	var d config.Durations
	sc := storage.Config{
		Driver:          strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:            strings.TrimSpace(cfg.Storage.Path),
		PreferencesPath: strings.TrimSpace(cfg.Storage.PreferencesPath),
		BusyTimeout:     d.Get("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second),
	}
	if sc.Driver == "" {
		sc.Driver = "file"
	}
	return sc, d.Err
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	var d config.Durations
	dc := delivery.Config{
		DefaultChatID: cfg.Telegram.DefaultChatID,
		RatePerSec:    cfg.Dispatch.RatePerSec,
		RetryMax:      cfg.Dispatch.RetryMax,
		RetryBase:     d.Get("dispatch.retry_base", cfg.Dispatch.RetryBase, 500*time.Millisecond),
		RetryMaxDelay: d.Get("dispatch.retry_max_delay", cfg.Dispatch.RetryMaxDelay, 5*time.Second),
	}
	return dc, d.Err
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	var d config.Durations
	dc := dispatch.Config{
		Enabled:         cfg.Dispatch.IsEnabled(),
		Interval:        d.Get("dispatch.interval", cfg.Dispatch.Interval, time.Minute),
		FirstDelay:      d.Get("dispatch.first_delay", cfg.Dispatch.FirstDelay, 10*time.Second),
		DueWindow:       d.Get("dispatch.due_window", cfg.Dispatch.DueWindow, 60*time.Second),
		DeliveryTimeout: d.Get("dispatch.delivery_timeout", cfg.Dispatch.DeliveryTimeout, 30*time.Second),
		MissedPolicy:    cfg.Dispatch.MissedPolicy,
	}
	return dc, d.Err
}

// mapNotifierConfig points alerts at the ops chat; without one the notifier
// stays disabled.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.NotifierOrDefault()
	var d config.Durations
	out := notifier.Config{
		Enabled:         nc.Enabled,
		Target:          kit.ChatTarget{ChatID: cfg.Telegram.OpsChatID, ThreadID: cfg.Telegram.OpsThreadID},
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       d.Get("notifier.retry_base", nc.RetryBase, 500*time.Millisecond),
		RetryMaxDelay:   d.Get("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second),
		DedupWindow:     d.Get("notifier.dedup_window", nc.DedupWindow, 10*time.Minute),
		DedupMaxEntries: nc.DedupMaxEntries,
	}
	return out, d.Err
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	var d config.Durations
	out := ops.Config{
		Enabled:              o.Enabled,
		Addr:                 strings.TrimSpace(o.Addr),
		Token:                strings.TrimSpace(o.Token),
		AllowInsecure:        o.AllowInsecure,
		Pprof:                o.Pprof,
		PprofPrefix:          o.PprofPrefix,
		ReadTimeout:          d.Get("ops.read_timeout", o.ReadTimeout, 10*time.Second),
		WriteTimeout:         d.Get("ops.write_timeout", o.WriteTimeout, 60*time.Second),
		IdleTimeout:          d.Get("ops.idle_timeout", o.IdleTimeout, 60*time.Second),
		MutexProfileFraction: o.MutexProfileFraction,
		BlockProfileRate:     o.BlockProfileRate,
	}
	if out.Addr == "" {
		out.Addr = "127.0.0.1:6060"
	}
	return out, d.Err
}

func sessionTTL(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("intake.session_ttl", cfg.Intake.SessionTTL, 30*time.Minute)
}
