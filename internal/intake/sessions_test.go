package intake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionsExpire(t *testing.T) {
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	s := NewSessions(30 * time.Minute)
	s.now = func() time.Time { return now }

	k := Key{ChatID: 1, UserID: 2}
	s.Put(k, Session{State: AwaitingText})
	got, ok := s.Get(k)
	assert.True(t, ok)
	assert.Equal(t, AwaitingText, got.State)

	now = now.Add(31 * time.Minute)
	_, ok = s.Get(k)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestSessionsIdleIsDropped(t *testing.T) {
	s := NewSessions(0)
	k := Key{ChatID: 1, UserID: 2}
	s.Put(k, Session{State: AwaitingTopic})
	s.Put(k, Session{})
	_, ok := s.Get(k)
	assert.False(t, ok)
	assert.False(t, s.Delete(k))
}

func TestSessionsAreKeyedPerChatAndUser(t *testing.T) {
	s := NewSessions(time.Minute)
	s.Put(Key{ChatID: 1, UserID: 2}, Session{State: AwaitingText})

	_, ok := s.Get(Key{ChatID: 3, UserID: 2})
	assert.False(t, ok)
	_, ok = s.Get(Key{ChatID: 1, UserID: 4})
	assert.False(t, ok)
}
