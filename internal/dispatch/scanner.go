// Package dispatch periodically delivers lessons whose scheduled time falls
// inside the due window and removes them once delivered.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"studybot/internal/domain"
	"studybot/internal/eventbus"
	"studybot/internal/lessons"
	"studybot/pkg/logx"
)

const (
	// MissedSkip leaves lessons whose window has passed undelivered.
	MissedSkip = "skip"
	// MissedDeliver delivers anything whose time has passed, however late.
	MissedDeliver = "deliver"
)

type Config struct {
	Enabled         bool
	Interval        time.Duration
	FirstDelay      time.Duration
	DueWindow       time.Duration
	DeliveryTimeout time.Duration
	MissedPolicy    string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.FirstDelay < 0 {
		c.FirstDelay = 0
	}
	if c.DueWindow <= 0 {
		c.DueWindow = 60 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 30 * time.Second
	}
	c.MissedPolicy = strings.ToLower(strings.TrimSpace(c.MissedPolicy))
	if c.MissedPolicy != MissedDeliver {
		c.MissedPolicy = MissedSkip
	}
	return c
}

// Deliverer sends one lesson to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, l domain.Lesson) error
}

// Report summarizes one scan.
type Report struct {
	At        time.Time     `json:"at"`
	Took      time.Duration `json:"took"`
	Pending   int           `json:"pending"`
	Due       int           `json:"due"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Orphaned  int           `json:"orphaned"` // newly orphaned in this scan
	Err       string        `json:"err,omitempty"`
}

type Scanner struct {
	repo *lessons.Repository
	out  Deliverer
	log  logx.Logger
	bus  eventbus.Bus
	now  func() time.Time

	mu       sync.Mutex
	running  sync.Mutex // held by a triggered scan
	cfg      Config
	c        *cron.Cron
	first    *time.Timer
	job      cron.Job
	last     Report
	orphaned map[string]struct{}
}

type Option func(*Scanner)

func WithBus(bus eventbus.Bus) Option { return func(s *Scanner) { s.bus = bus } }

func WithClock(now func() time.Time) Option { return func(s *Scanner) { s.now = now } }

func New(cfg Config, repo *lessons.Repository, out Deliverer, log logx.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		repo:     repo,
		out:      out,
		log:      log.OrNop().Component("dispatch"),
		now:      time.Now,
		cfg:      cfg.withDefaults(),
		orphaned: map[string]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scanner) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start registers the periodic scan and schedules the first one after
// FirstDelay. Scans never overlap; a trigger arriving while a scan is still
// running is dropped.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Scanner) startLocked(ctx context.Context) error {
	cl := cronLogger{log: s.log}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		s.running.Lock()
		defer s.running.Unlock()
		if ctx.Err() == nil {
			s.Scan(ctx)
		}
	}))

	c := cron.New(cron.WithLogger(cl))
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddJob(spec, s.job); err != nil {
		return fmt.Errorf("dispatch schedule %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.first = time.AfterFunc(s.cfg.FirstDelay, s.job.Run)

	s.log.Info("scanner started",
		logx.String("spec", spec),
		logx.Duration("first_delay", s.cfg.FirstDelay),
		logx.Duration("due_window", s.cfg.DueWindow),
		logx.String("missed_policy", s.cfg.MissedPolicy),
	)
	return nil
}

// Stop halts triggering and waits (bounded by ctx) for a running scan.
func (s *Scanner) Stop(ctx context.Context) {
	s.mu.Lock()
	c, first := s.c, s.first
	s.c, s.first = nil, nil
	s.mu.Unlock()

	if first != nil {
		first.Stop()
	}
	if c == nil {
		return
	}
	c.Stop()

	done := make(chan struct{})
	go func() {
		s.running.Lock()
		s.running.Unlock()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scanner stopped")
	case <-ctx.Done():
		s.log.Warn("scanner stop timed out with a scan in flight", logx.Err(ctx.Err()))
	}
}

// Apply swaps the config and restarts triggering when the interval or the
// enabled flag changed.
func (s *Scanner) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()

	if running && (!cfg.Enabled || prev.Interval != cfg.Interval) {
		s.Stop(ctx)
		running = false
	}
	if !running && cfg.Enabled {
		if err := s.Start(ctx); err != nil {
			s.log.Error("scanner restart failed", logx.Err(err))
		}
	}
}

// LastReport returns the most recent scan summary.
func (s *Scanner) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// NextRun returns the next periodic trigger, zero when not running.
func (s *Scanner) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	if es := s.c.Entries(); len(es) > 0 {
		return es[0].Next
	}
	return time.Time{}
}

// Scan runs one pass over all pending lessons. The repository stays locked
// for the whole pass; delivered lessons are removed in one write at the end.
func (s *Scanner) Scan(ctx context.Context) Report {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	now := s.now()
	rep := Report{At: now}
	var errs []error

	rep.Delivered = s.repo.Sweep(ctx, func(pending []domain.Lesson) []string {
		rep.Pending = len(pending)
		var done []string
		live := make(map[string]struct{}, len(pending))
		for _, l := range pending {
			live[l.ID] = struct{}{}
			switch classify(now, l.At, cfg) {
			case stateWaiting:
				continue
			case stateOrphaned:
				if s.markOrphan(l, now) {
					rep.Orphaned++
				}
				continue
			}

			rep.Due++
			if err := s.deliver(ctx, cfg, l); err != nil {
				rep.Failed++
				errs = append(errs, err)
				continue
			}
			done = append(done, l.ID)
		}
		s.pruneOrphans(live)
		return done
	})

	rep.Took = max(s.now().Sub(now), 0)
	if err := errors.Join(errs...); err != nil {
		rep.Err = err.Error()
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	eventbus.Publish(s.bus, eventbus.ScanCompleted, rep)
	if rep.Due > 0 || rep.Orphaned > 0 {
		s.log.Info("scan completed",
			logx.Int("pending", rep.Pending),
			logx.Int("due", rep.Due),
			logx.Int("delivered", rep.Delivered),
			logx.Int("failed", rep.Failed),
			logx.Int("orphaned", rep.Orphaned),
		)
	} else {
		s.log.Trace("scan completed", logx.Int("pending", rep.Pending))
	}
	return rep
}

func (s *Scanner) deliver(ctx context.Context, cfg Config, l domain.Lesson) error {
	dctx, cancel := context.WithTimeout(ctx, cfg.DeliveryTimeout)
	defer cancel()

	err := s.out.Deliver(dctx, l)
	ev := eventbus.LessonEvent{LessonID: l.ID, At: l.At, ChatID: l.GroupChatID, TopicID: l.TopicID}
	if err != nil {
		ev.Error = err.Error()
		eventbus.Publish(s.bus, eventbus.LessonDeliveryFailed, ev)
		s.log.Error("lesson delivery failed; kept for retry", logx.String("lesson_id", l.ID), logx.Time("at", l.At), logx.Err(err))
		return err
	}
	eventbus.Publish(s.bus, eventbus.LessonDelivered, ev)
	s.log.Info("lesson delivered", logx.String("lesson_id", l.ID), logx.Int("topic_id", l.TopicID))
	return nil
}

// markOrphan records l as orphaned and reports whether this is the first time.
func (s *Scanner) markOrphan(l domain.Lesson, now time.Time) bool {
	s.mu.Lock()
	_, seen := s.orphaned[l.ID]
	s.orphaned[l.ID] = struct{}{}
	s.mu.Unlock()
	if seen {
		return false
	}
	s.log.Warn("lesson missed its delivery window; it will not be delivered",
		logx.String("lesson_id", l.ID),
		logx.Time("at", l.At),
		logx.Duration("late_by", now.Sub(l.At)),
	)
	eventbus.Publish(s.bus, eventbus.LessonOrphaned, eventbus.LessonEvent{LessonID: l.ID, At: l.At, ChatID: l.GroupChatID, TopicID: l.TopicID})
	return true
}

// pruneOrphans forgets orphans that were deleted or edited back into range.
func (s *Scanner) pruneOrphans(live map[string]struct{}) {
	s.mu.Lock()
	for id := range s.orphaned {
		if _, ok := live[id]; !ok {
			delete(s.orphaned, id)
		}
	}
	s.mu.Unlock()
}

type lessonState int

const (
	stateWaiting lessonState = iota
	stateDue
	stateOrphaned
)

// classify applies the due-window test on absolute instants.
func classify(now, at time.Time, cfg Config) lessonState {
	d := now.Sub(at)
	switch {
	case d < -cfg.DueWindow:
		return stateWaiting
	case d <= cfg.DueWindow:
		return stateDue
	case cfg.MissedPolicy == MissedDeliver:
		return stateDue
	default:
		return stateOrphaned
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		if k == "" {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
