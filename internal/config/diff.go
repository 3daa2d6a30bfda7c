package config

import (
	"reflect"
	"sort"
	"strings"

	"studybot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and returns log
// fields describing the new values. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.DefaultChatID != nt.DefaultChatID || ot.OpsChatID != nt.OpsChatID || ot.OpsThreadID != nt.OpsThreadID ||
		(ot.Token != "") != (nt.Token != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", nt.PollTimeout),
			logx.Int64("telegram.default_chat_id", nt.DefaultChatID),
			logx.Bool("telegram.ops_chat_set", nt.OpsChatID != 0),
			logx.Bool("telegram.token_set", nt.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	od, nd := oldCfg.Dispatch, newCfg.Dispatch
	if od.IsEnabled() != nd.IsEnabled() || !reflect.DeepEqual(withoutEnabled(od), withoutEnabled(nd)) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Bool("dispatch.enabled", nd.IsEnabled()),
			logx.String("dispatch.interval", nd.Interval),
			logx.String("dispatch.due_window", nd.DueWindow),
			logx.String("dispatch.missed_policy", nd.MissedPolicy),
			logx.String("dispatch.timezone", nd.Timezone),
		)
	}

	if oldCfg.Intake != newCfg.Intake {
		changed = append(changed, "intake")
		attrs = append(attrs,
			logx.String("intake.session_ttl", newCfg.Intake.SessionTTL),
			logx.String("intake.default_language", newCfg.Intake.DefaultLanguage),
		)
	}

	oo, no := oldCfg.Ops, newCfg.Ops
	tokenFlip := (oo.Token != "") != (no.Token != "")
	oo.Token, no.Token = "", ""
	if tokenFlip || oo != no {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", no.Enabled),
			logx.String("ops.addr", no.Addr),
			logx.Bool("ops.pprof", no.Pprof),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		)
	}

	on, nn := oldCfg.NotifierOrDefault(), newCfg.NotifierOrDefault()
	if on != nn {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.String("notifier.dedup_window", nn.DedupWindow),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func withoutEnabled(d DispatchConfig) DispatchConfig {
	d.Enabled = nil
	return d
}
