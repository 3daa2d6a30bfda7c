package intake

import (
	"sync"
	"time"
)

// Key identifies a conversation: one user in one chat.
type Key struct {
	ChatID int64
	UserID int64
}

// Sessions is an in-memory TTL store of active conversations. Idle sessions
// expire after ttl since their last Put.
type Sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	// sweepEvery bounds how often Get/Put scan for expired entries.
	sweepEvery time.Duration
	nextSweep  time.Time

	m map[Key]sessionEntry
}

type sessionEntry struct {
	s   Session
	exp time.Time
}

// NewSessions defaults ttl to 30 minutes.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Sessions{ttl: ttl, now: time.Now, sweepEvery: time.Minute, m: map[Key]sessionEntry{}}
}

// SetTTL applies to sessions stored from now on.
func (s *Sessions) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

// Get returns the live session for k. Expired or idle sessions report false.
func (s *Sessions) Get(k Key) (Session, bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweepLocked(now)

	e, ok := s.m[k]
	if !ok {
		return Session{}, false
	}
	if now.After(e.exp) {
		delete(s.m, k)
		return Session{}, false
	}
	return e.s, e.s.State != Idle
}

// Put stores sess for k, or drops k when sess is idle.
func (s *Sessions) Put(k Key, sess Session) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweepLocked(now)

	if sess.State == Idle {
		delete(s.m, k)
		return
	}
	s.m[k] = sessionEntry{s: sess, exp: now.Add(s.ttl)}
}

func (s *Sessions) Delete(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[k]
	delete(s.m, k)
	return ok
}

// Len counts stored sessions, including ones not yet swept.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *Sessions) maybeSweepLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
	s.nextSweep = now.Add(s.sweepEvery)
}
