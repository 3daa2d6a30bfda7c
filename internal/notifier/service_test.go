package notifier

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybot/internal/eventbus"
	kit "studybot/internal/transport"
	"studybot/internal/transport/transporttest"
	"studybot/pkg/logx"
)

var ops = kit.ChatTarget{ChatID: -500, ThreadID: 9}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Target:        ops,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		DedupWindow:   time.Minute,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestFailedDeliveryEventBecomesOpsAlert(t *testing.T) {
	bus := eventbus.New()
	ad := &transporttest.Adapter{}
	s := New(testConfig(), ad, logx.Nop(), bus, WithLocation(time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	at := time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)
	// Subscription happens inside Start, so publishing right away is safe.
	bus.Publish(eventbus.Event{Type: eventbus.LessonDelivered, Data: eventbus.LessonEvent{LessonID: "1", At: at}})
	bus.Publish(eventbus.Event{Type: eventbus.LessonDeliveryFailed, Data: eventbus.LessonEvent{LessonID: "2", At: at, ChatID: -100, TopicID: 4, Error: "chat not found"}})

	waitFor(t, func() bool { return len(ad.Sent()) == 1 })
	got := ad.Last()
	assert.Equal(t, ops, got.To)
	assert.True(t, strings.HasPrefix(got.Text, "⚠️ Lesson #2 could not be delivered to chat -100"))
	assert.Contains(t, got.Text, "2025-07-01 06:00")
	assert.Contains(t, got.Text, "chat not found")
}

func TestRepeatedAlertsAreDeduplicated(t *testing.T) {
	bus := eventbus.New()
	ad := &transporttest.Adapter{}
	s := New(testConfig(), ad, logx.Nop(), bus)
	s.Start(context.Background())

	for range 3 {
		bus.Publish(eventbus.Event{Type: eventbus.LessonOrphaned, Data: eventbus.LessonEvent{LessonID: "7", At: time.Now()}})
	}
	bus.Publish(eventbus.Event{Type: eventbus.LessonOrphaned, Data: eventbus.LessonEvent{LessonID: "8", At: time.Now()}})

	waitFor(t, func() bool { return s.Stats().Deduped == 2 && s.Stats().Sent == 2 })
	s.Stop(context.Background())
	assert.Len(t, ad.Sent(), 2)
	assert.Len(t, s.History(), 2)
	assert.True(t, strings.HasPrefix(ad.Sent()[0].Text, "🚨 "))
}

func TestSendIsRetried(t *testing.T) {
	var calls atomic.Int32
	ad := &transporttest.Adapter{Fail: func(transporttest.Sent) error {
		if calls.Add(1) < 3 {
			return errors.New("flaky")
		}
		return nil
	}}
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.Start(context.Background())
	require.NoError(t, s.Notify(context.Background(), kit.Notification{Channel: "x", Target: ops, Text: "hello"}))
	s.Stop(context.Background())

	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 1, s.Stats().Sent)
	assert.Equal(t, "hello", ad.Last().Text)
}

func TestGivesUpAfterRetryMax(t *testing.T) {
	ad := &transporttest.Adapter{Fail: func(transporttest.Sent) error { return errors.New("down") }}
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.Start(context.Background())
	require.NoError(t, s.Notify(context.Background(), kit.Notification{Target: ops, Text: "x"}))
	s.Stop(context.Background())

	assert.EqualValues(t, 1, s.Stats().Failed)
	assert.Empty(t, ad.Sent())
}

func TestDisabledWithoutOpsChat(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Target = kit.ChatTarget{}
	s := New(cfg, &transporttest.Adapter{}, logx.Nop(), nil)
	s.Start(context.Background())
	assert.False(t, s.Enabled())
	assert.Nil(t, s.Supervisor())
	assert.ErrorIs(t, s.Notify(context.Background(), kit.Notification{Text: "x"}), ErrDisabled)
}

func TestNotifyAfterStop(t *testing.T) {
	t.Parallel()
	s := New(testConfig(), &transporttest.Adapter{}, logx.Nop(), nil)
	assert.ErrorIs(t, s.Notify(context.Background(), kit.Notification{Text: "x"}), ErrStopped)
	s.Start(context.Background())
	s.Stop(context.Background())
	assert.ErrorIs(t, s.Notify(context.Background(), kit.Notification{Text: "x"}), ErrStopped)
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.LessOrEqual(t, retryDelay(cfg, 1), 130*time.Millisecond)
}

func TestAlertForIgnoresOtherEvents(t *testing.T) {
	t.Parallel()
	_, ok := alertFor(eventbus.Event{Type: eventbus.LessonAdded, Data: eventbus.LessonEvent{LessonID: "1"}}, ops, nil)
	assert.False(t, ok)
	_, ok = alertFor(eventbus.Event{Type: eventbus.LessonOrphaned, Data: "not a lesson"}, ops, nil)
	assert.False(t, ok)
}

func TestOrphanAlertSaysLessonIsKept(t *testing.T) {
	t.Parallel()
	n, ok := alertFor(eventbus.Event{Type: eventbus.LessonOrphaned, Data: eventbus.LessonEvent{
		LessonID: "5", TopicID: 3, At: time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC),
	}}, ops, nil)
	require.True(t, ok)
	assert.Equal(t, PriorityAlert, n.Priority)
	assert.Contains(t, n.Text, "Lesson #5 missed its delivery window")
	assert.Contains(t, n.Text, "remains stored but will not be posted")
	assert.NotContains(t, n.Text, "dropped")
}
