// Package lessons is the schedule repository: the authoritative in-memory
// mirror of pending lessons and user preferences, and the only writer of
// the durable store.
package lessons

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"studybot/internal/domain"
	"studybot/internal/eventbus"
	"studybot/internal/storage"
	"studybot/pkg/logx"
)

// Repository serializes every read and mutation behind one mutex. Each
// mutation persists the full state synchronously before returning; a failed
// save is logged and the in-memory state is kept.
type Repository struct {
	store storage.Store
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	fallback domain.Language

	mu      sync.Mutex
	lessons map[string]domain.Lesson
	prefs   map[string]domain.Preference
	nextID  uint64
}

type Option func(*Repository)

func WithBus(bus eventbus.Bus) Option { return func(r *Repository) { r.bus = bus } }

// WithDefaultLanguage sets the language of users without a preference.
func WithDefaultLanguage(l domain.Language) Option {
	return func(r *Repository) {
		if l.Valid() {
			r.fallback = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(r *Repository) { r.now = now } }

// Open loads the store into a new repository. The returned error only
// describes collections that could not be read; the repository is always
// usable and starts empty for those collections.
func Open(ctx context.Context, store storage.Store, log logx.Logger, opts ...Option) (*Repository, error) {
	r := &Repository{
		store:    store,
		log:      log.OrNop().Component("lessons"),
		now:      time.Now,
		fallback: domain.DefaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		r.log.Error("store load degraded; continuing with what could be read", logx.Err(err))
	}
	if snap.Lessons == nil || snap.Preferences == nil {
		empty := storage.EmptySnapshot()
		if snap.Lessons == nil {
			snap.Lessons = empty.Lessons
		}
		if snap.Preferences == nil {
			snap.Preferences = empty.Preferences
		}
	}
	r.lessons = snap.Lessons
	r.prefs = snap.Preferences
	r.nextID = max(snap.NextID, maxNumericID(snap.Lessons))

	r.log.Info("repository loaded",
		logx.Int("lessons", len(r.lessons)),
		logx.Int("users", len(r.prefs)),
		logx.Uint64("next_id", r.nextID+1),
	)
	return r, err
}

func maxNumericID(m map[string]domain.Lesson) uint64 {
	var hi uint64
	for id := range m {
		if n, err := strconv.ParseUint(id, 10, 64); err == nil && n > hi {
			hi = n
		}
	}
	return hi
}

// Add assigns the next id to l, stores and persists it, and returns the id.
// Ids come from a persisted counter and are never reused.
func (r *Repository) Add(ctx context.Context, l domain.Lesson) string {
	r.mu.Lock()
	r.nextID++
	id := strconv.FormatUint(r.nextID, 10)
	l.ID = id
	r.lessons[id] = l
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.audit(ctx, storage.AuditEntry{Action: eventbus.LessonAdded, ActorID: l.UserID, LessonID: id, Detail: l.At.Format(time.RFC3339)})
	eventbus.Publish(r.bus, eventbus.LessonAdded, lessonEvent(l, l.UserID))
	r.log.Info("lesson added", logx.String("lesson_id", id), logx.Time("at", l.At), logx.Int("topic_id", l.TopicID))
	return id
}

func (r *Repository) Get(id string) (domain.Lesson, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lessons[id]
	return l, ok
}

// List returns pending lessons ordered by scheduled time, then id.
func (r *Repository) List() []domain.Lesson {
	r.mu.Lock()
	out := make([]domain.Lesson, 0, len(r.lessons))
	for _, l := range r.lessons {
		out = append(out, l)
	}
	r.mu.Unlock()
	sortLessons(out)
	return out
}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lessons)
}

// Delete removes id. An absent id returns false and writes nothing.
func (r *Repository) Delete(ctx context.Context, id string, actorID int64) bool {
	r.mu.Lock()
	l, ok := r.lessons[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.lessons, id)
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.audit(ctx, storage.AuditEntry{Action: eventbus.LessonDeleted, ActorID: actorID, LessonID: id})
	eventbus.Publish(r.bus, eventbus.LessonDeleted, lessonEvent(l, actorID))
	r.log.Info("lesson deleted", logx.String("lesson_id", id), logx.Int64("actor_id", actorID))
	return true
}

// UpdateField replaces one attribute of a lesson. It returns false (and
// writes nothing) for an absent id, and a ValidationError when value does
// not fit the field.
func (r *Repository) UpdateField(ctx context.Context, id string, field domain.Field, value any, actorID int64) (bool, error) {
	r.mu.Lock()
	l, ok := r.lessons[id]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	updated, err := l.Apply(field, value)
	if err != nil {
		r.mu.Unlock()
		return true, err
	}
	r.lessons[id] = updated
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.audit(ctx, storage.AuditEntry{Action: eventbus.LessonUpdated, ActorID: actorID, LessonID: id, Detail: string(field)})
	ev := lessonEvent(updated, actorID)
	ev.Field = string(field)
	eventbus.Publish(r.bus, eventbus.LessonUpdated, ev)
	r.log.Info("lesson updated", logx.String("lesson_id", id), logx.String("field", string(field)))
	return true, nil
}

// Language returns the user's language, or the fallback when unset.
func (r *Repository) Language(userID int64) domain.Language {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prefs[userKey(userID)]; ok && p.Language.Valid() {
		return p.Language
	}
	return r.fallback
}

// SetLanguage records the user's language and persists it.
func (r *Repository) SetLanguage(ctx context.Context, userID int64, lang domain.Language) error {
	if !lang.Valid() {
		return domain.NewValidationError("language", domain.ErrInvalidFormat)
	}
	r.mu.Lock()
	r.prefs[userKey(userID)] = domain.Preference{Language: lang}
	r.persistLocked(ctx)
	r.mu.Unlock()

	eventbus.Publish(r.bus, eventbus.LanguageChanged, map[string]any{"user_id": userID, "language": string(lang)})
	return nil
}

// SweepFunc inspects the pending lessons and returns the ids to remove.
// It runs with the repository locked and must not call back into it.
type SweepFunc func(pending []domain.Lesson) (remove []string)

// Sweep runs fn as one unit against the current lessons and removes the
// returned ids with a single persisted write. It returns how many were removed.
func (r *Repository) Sweep(ctx context.Context, fn SweepFunc) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]domain.Lesson, 0, len(r.lessons))
	for _, l := range r.lessons {
		pending = append(pending, l)
	}
	sortLessons(pending)

	removed := 0
	for _, id := range fn(pending) {
		if _, ok := r.lessons[id]; ok {
			delete(r.lessons, id)
			removed++
		}
	}
	if removed > 0 {
		r.persistLocked(ctx)
	}
	return removed
}

// Export renders the backup document of all pending lessons.
func (r *Repository) Export() ([]byte, time.Time, error) {
	at := r.now()
	r.mu.Lock()
	cp := make(map[string]domain.Lesson, len(r.lessons))
	for id, l := range r.lessons {
		cp[id] = l
	}
	r.mu.Unlock()
	b, err := storage.EncodeExport(cp, at)
	return b, at, err
}

func (r *Repository) persistLocked(ctx context.Context) {
	snap := storage.Snapshot{Lessons: r.lessons, Preferences: r.prefs, NextID: r.nextID}
	if err := r.store.Save(ctx, snap); err != nil {
		r.log.Error("store save failed; in-memory state kept", logx.Err(err))
	}
}

func (r *Repository) audit(ctx context.Context, e storage.AuditEntry) {
	e.At = r.now()
	if err := r.store.AppendAudit(ctx, e); err != nil {
		r.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func lessonEvent(l domain.Lesson, actorID int64) eventbus.LessonEvent {
	return eventbus.LessonEvent{LessonID: l.ID, At: l.At, ChatID: l.GroupChatID, TopicID: l.TopicID, ActorID: actorID}
}

func userKey(id int64) string { return strconv.FormatInt(id, 10) }

func sortLessons(ls []domain.Lesson) {
	slices.SortFunc(ls, func(a, b domain.Lesson) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return cmp.Compare(idOrder(a.ID), idOrder(b.ID))
	})
}

func idOrder(id string) uint64 {
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}
