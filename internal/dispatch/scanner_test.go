package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybot/internal/domain"
	"studybot/internal/eventbus"
	"studybot/internal/lessons"
	"studybot/internal/storage"
	"studybot/pkg/logx"
)

var berlin = time.FixedZone("CEST", 2*60*60)

type recorder struct {
	mu   sync.Mutex
	got  []domain.Lesson
	fail error
}

func (r *recorder) Deliver(_ context.Context, l domain.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, l)
	return nil
}

func (r *recorder) delivered() []domain.Lesson {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Lesson(nil), r.got...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newRepo(t *testing.T) *lessons.Repository {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "lessons.json")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	r, err := lessons.Open(context.Background(), st, logx.Nop())
	require.NoError(t, err)
	return r
}

func newScanner(t *testing.T, cfg Config, out Deliverer, clk *clock, opts ...Option) (*Scanner, *lessons.Repository) {
	t.Helper()
	repo := newRepo(t)
	opts = append(opts, WithClock(clk.Now))
	return New(cfg, repo, out, logx.Nop(), opts...), repo
}

func TestLessonAddedBeforeItsTimeIsDeliveredOnce(t *testing.T) {
	T := time.Date(2025, 7, 1, 8, 0, 0, 0, berlin)
	clk := &clock{now: T.Add(-5 * time.Minute)}
	out := &recorder{}
	s, repo := newScanner(t, Config{}, out, clk)

	repo.Add(context.Background(), domain.Lesson{Text: "Lesson 1", At: T, TopicID: 42})

	rep := s.Scan(context.Background())
	assert.Zero(t, rep.Due, "not due five minutes early")

	clk.Set(T)
	rep = s.Scan(context.Background())
	assert.Equal(t, 1, rep.Delivered)
	assert.Zero(t, repo.Len())

	got := out.delivered()
	require.Len(t, got, 1)
	assert.Equal(t, "Lesson 1", got[0].Text)
	assert.Equal(t, 42, got[0].TopicID)

	// Immediate second scan never re-delivers.
	rep = s.Scan(context.Background())
	assert.Zero(t, rep.Due)
	assert.Len(t, out.delivered(), 1)
}

func TestFarPastLessonIsNeverDelivered(t *testing.T) {
	T := time.Date(2025, 7, 1, 8, 0, 0, 0, berlin)
	clk := &clock{now: T}
	out := &recorder{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	s, repo := newScanner(t, Config{DueWindow: 60 * time.Second}, out, clk, WithBus(bus))

	id := repo.Add(context.Background(), domain.Lesson{Text: "late", At: T.Add(-2 * time.Hour)})

	rep := s.Scan(context.Background())
	assert.Equal(t, 1, rep.Orphaned)
	rep = s.Scan(context.Background())
	assert.Zero(t, rep.Orphaned, "orphan reported once")

	assert.Empty(t, out.delivered())
	_, ok := repo.Get(id)
	assert.True(t, ok, "orphaned lesson stays in the store")

	var orphanEvents int
	for {
		select {
		case e := <-ch:
			if e.Type == eventbus.LessonOrphaned {
				orphanEvents++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, orphanEvents)
}

func TestMissedPolicyDeliverSendsLateLessons(t *testing.T) {
	T := time.Date(2025, 7, 1, 8, 0, 0, 0, berlin)
	clk := &clock{now: T}
	out := &recorder{}
	s, repo := newScanner(t, Config{MissedPolicy: "deliver"}, out, clk)

	repo.Add(context.Background(), domain.Lesson{Text: "late", At: T.Add(-2 * time.Hour)})
	repo.Add(context.Background(), domain.Lesson{Text: "future", At: T.Add(2 * time.Hour)})

	rep := s.Scan(context.Background())
	assert.Equal(t, 1, rep.Delivered)
	assert.Equal(t, 1, repo.Len())
}

func TestDeliveryFailureKeepsLesson(t *testing.T) {
	T := time.Date(2025, 7, 1, 8, 0, 0, 0, berlin)
	clk := &clock{now: T}
	out := &recorder{fail: errors.New("chat not found")}
	s, repo := newScanner(t, Config{}, out, clk)

	id := repo.Add(context.Background(), domain.Lesson{Text: "x", At: T.Add(30 * time.Second)})

	rep := s.Scan(context.Background())
	assert.Equal(t, 1, rep.Failed)
	assert.Zero(t, rep.Delivered)
	assert.NotEmpty(t, rep.Err)
	_, ok := repo.Get(id)
	assert.True(t, ok)

	// Retried on the next scan while still inside the window.
	out.mu.Lock()
	out.fail = nil
	out.mu.Unlock()
	clk.Set(T.Add(50 * time.Second))
	rep = s.Scan(context.Background())
	assert.Equal(t, 1, rep.Delivered)
	assert.Equal(t, rep, s.LastReport())
}

func TestOffsetsDoNotAffectDueTest(t *testing.T) {
	at := time.Date(2025, 1, 15, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	now := at.UTC().Add(45 * time.Second)
	cfg := Config{}.withDefaults()
	assert.Equal(t, stateDue, classify(now, at, cfg))
	assert.Equal(t, stateWaiting, classify(now.Add(-2*time.Minute), at, cfg))
	assert.Equal(t, stateOrphaned, classify(now.Add(2*time.Minute), at, cfg))
}

func TestClassifyWindowEdges(t *testing.T) {
	at := time.Date(2025, 7, 1, 8, 0, 0, 0, berlin)
	cfg := Config{DueWindow: time.Minute}.withDefaults()
	cases := []struct {
		name string
		now  time.Time
		want lessonState
	}{
		{"exactly window early", at.Add(-time.Minute), stateDue},
		{"exactly window late", at.Add(time.Minute), stateDue},
		{"just before window", at.Add(-time.Minute - time.Second), stateWaiting},
		{"just after window", at.Add(time.Minute + time.Second), stateOrphaned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.now, at, cfg))
		})
	}
}

func TestStartRunsFirstScanAfterDelay(t *testing.T) {
	T := time.Now()
	clk := &clock{now: T}
	out := &recorder{}
	s, repo := newScanner(t, Config{Enabled: true, Interval: time.Hour, FirstDelay: 10 * time.Millisecond}, out, clk)
	repo.Add(context.Background(), domain.Lesson{Text: "soon", At: T})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return len(out.delivered()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.NextRun().IsZero())
}

func TestDisabledScannerDoesNotStart(t *testing.T) {
	s, _ := newScanner(t, Config{Enabled: false}, &recorder{}, &clock{now: time.Now()})
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.NextRun().IsZero())
	s.Stop(context.Background())
}

type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) Deliver(context.Context, domain.Lesson) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return nil
}

func TestStopWaitsForInFlightScan(t *testing.T) {
	T := time.Now()
	out := newGate()
	s, repo := newScanner(t, Config{Enabled: true, Interval: time.Hour, FirstDelay: time.Millisecond}, out, &clock{now: T})
	id := repo.Add(context.Background(), domain.Lesson{Text: "slow", At: T})
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-out.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("scan never reached the deliverer")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(out.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the scan finished")
	}
	_, ok := repo.Get(id)
	assert.False(t, ok, "delivered lesson is removed before Stop returns")
}

func TestStopIsBoundedByContext(t *testing.T) {
	T := time.Now()
	out := newGate()
	defer close(out.release)
	s, repo := newScanner(t, Config{Enabled: true, Interval: time.Hour, FirstDelay: time.Millisecond}, out, &clock{now: T})
	repo.Add(context.Background(), domain.Lesson{Text: "stuck", At: T})
	require.NoError(t, s.Start(context.Background()))
	<-out.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	s.Stop(ctx)
	assert.Less(t, time.Since(start), time.Second)
}
