package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
)

// ErrMissingToken is the only configuration problem that stops the bot.
var ErrMissingToken = errors.New("telegram token is empty (set telegram.token or BOT_TOKEN)")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints, duration strings, the timezone and the
// ops bind. It does not require a token; see RequireToken.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		errs = append(errs, err)
	}

	durations := map[string]string{
		"telegram.poll_timeout":     cfg.Telegram.PollTimeout,
		"storage.busy_timeout":      cfg.Storage.BusyTimeout,
		"dispatch.interval":         cfg.Dispatch.Interval,
		"dispatch.first_delay":      cfg.Dispatch.FirstDelay,
		"dispatch.due_window":       cfg.Dispatch.DueWindow,
		"dispatch.delivery_timeout": cfg.Dispatch.DeliveryTimeout,
		"dispatch.retry_base":       cfg.Dispatch.RetryBase,
		"dispatch.retry_max_delay":  cfg.Dispatch.RetryMaxDelay,
		"intake.session_ttl":        cfg.Intake.SessionTTL,
		"ops.read_timeout":          cfg.Ops.ReadTimeout,
		"ops.write_timeout":         cfg.Ops.WriteTimeout,
		"ops.idle_timeout":          cfg.Ops.IdleTimeout,
	}
	n := cfg.NotifierOrDefault()
	durations["notifier.retry_base"] = n.RetryBase
	durations["notifier.retry_max_delay"] = n.RetryMaxDelay
	durations["notifier.dedup_window"] = n.DedupWindow
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if err := checkOpsBind(cfg.Ops); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequireToken fails with ErrMissingToken when no token is configured.
func RequireToken(cfg *Config) error {
	if cfg == nil || strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// Location loads the dispatch timezone (default Europe/Berlin).
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Dispatch.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("dispatch.timezone: %w", err)
	}
	return loc, nil
}

func checkOpsBind(o OpsConfig) error {
	if !o.Enabled || o.AllowInsecure || strings.TrimSpace(o.Token) != "" {
		return nil
	}
	host, _, err := net.SplitHostPort(o.Addr)
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if IsLoopbackHost(host) {
		return nil
	}
	return fmt.Errorf("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", o.Addr)
}

// IsLoopbackHost reports whether host is localhost or a loopback IP.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
