package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"studybot/internal/transport"
)

const opsMessageLimit = 3500

// opsSink is a zerolog.LevelWriter that forwards entries to a chat.
// Entries below the min level or over the rate are dropped.
type opsSink struct {
	mu       sync.Mutex
	sender   TextSender
	target   transport.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan opsItem
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type opsItem struct {
	to   transport.ChatTarget
	text string
}

func newOpsSink(sender TextSender) *opsSink {
	return &opsSink{sender: sender, queue: make(chan opsItem, 256), minLevel: zerolog.WarnLevel}
}

func (o *opsSink) setSender(sender TextSender) {
	o.mu.Lock()
	o.sender = sender
	o.mu.Unlock()
}

func (o *opsSink) configure(cfg OpsChatConfig) {
	o.mu.Lock()
	o.target = transport.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	o.minLevel = ParseLevel(cfg.MinLevel, LevelWarn)
	o.limiter = newLimiter(cfg.RatePerSec)
	o.mu.Unlock()
}

func (o *opsSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-o.queue:
				o.mu.Lock()
				sender := o.sender
				o.mu.Unlock()
				if sender != nil {
					_, _ = sender.SendText(ctx, it.to, it.text, &transport.SendOptions{DisablePreview: true})
				}
			}
		}
	}()
}

func (o *opsSink) stop() {
	if o.cancel != nil {
		o.cancel()
		o.wg.Wait()
	}
}

func (o *opsSink) Write(p []byte) (int, error) { return o.WriteLevel(zerolog.InfoLevel, p) }

func (o *opsSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	o.mu.Lock()
	to, min, lim, sender := o.target, o.minLevel, o.limiter, o.sender
	o.mu.Unlock()

	if to.ChatID == 0 || sender == nil || lim == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	text := formatOpsEntry(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case o.queue <- opsItem{to: to, text: text}:
	default:
	}
	return len(p), nil
}

// formatOpsEntry renders a zerolog JSON line as "[LEVEL] msg" plus sorted key=value lines.
func formatOpsEntry(p []byte) string {
	line := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return clip(line, opsMessageLimit)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(clip(fmt.Sprint(m[k]), 600))
	}
	return clip(b.String(), opsMessageLimit)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
