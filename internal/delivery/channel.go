// Package delivery posts a lesson to its group topic over the chat transport.
package delivery

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"studybot/internal/domain"
	kit "studybot/internal/transport"
	"studybot/pkg/logx"
)

type Config struct {
	// DefaultChatID is used for lessons without their own group chat.
	DefaultChatID int64
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Channel is safe for concurrent use.
type Channel struct {
	adapter kit.Adapter
	log     logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Channel {
	c := &Channel{adapter: adapter, log: log.OrNop().Component("delivery")}
	c.Apply(cfg)
	return c
}

// Apply swaps the configuration; in-flight deliveries keep the old one.
func (c *Channel) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	c.mu.Lock()
	c.cfg = cfg
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	c.mu.Unlock()
}

// Destination resolves where l goes: its own chat, else the default chat.
func (c *Channel) Destination(l domain.Lesson) (kit.ChatTarget, bool) {
	c.mu.Lock()
	def := c.cfg.DefaultChatID
	c.mu.Unlock()
	chat := l.GroupChatID
	if chat == 0 {
		chat = def
	}
	if chat == 0 {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: chat, ThreadID: l.TopicID}, true
}

// Deliver posts l, retrying transient failures within ctx. Lessons with an
// image go out as a photo with the text as caption.
func (c *Channel) Deliver(ctx context.Context, l domain.Lesson) error {
	to, ok := c.Destination(l)
	if !ok {
		return &domain.DeliveryError{LessonID: l.ID, TopicID: l.TopicID, Err: domain.ErrNoDestination}
	}

	c.mu.Lock()
	cfg := c.cfg
	lim := c.limiter
	c.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
		err := c.send(ctx, to, l)
		if err == nil {
			c.log.Debug("lesson delivered", logx.String("lesson_id", l.ID), logx.Int64("chat_id", to.ChatID), logx.Int("topic_id", to.ThreadID), logx.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		c.log.Debug("delivery attempt failed", logx.String("lesson_id", l.ID), logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(err))
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return &domain.DeliveryError{LessonID: l.ID, ChatID: to.ChatID, TopicID: to.ThreadID, Err: errors.Join(lastErr, ctx.Err())}
		}
	}
	return &domain.DeliveryError{LessonID: l.ID, ChatID: to.ChatID, TopicID: to.ThreadID, Err: lastErr}
}

func (c *Channel) send(ctx context.Context, to kit.ChatTarget, l domain.Lesson) error {
	var err error
	if l.HasImage() {
		_, err = c.adapter.SendPhoto(ctx, to, l.ImageFileID, l.Text, nil)
	} else {
		_, err = c.adapter.SendText(ctx, to, l.Text, nil)
	}
	return err
}

// retryDelay is the wait before attempt+1: exponential from RetryBase,
// capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
