package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybot/internal/domain"
	"studybot/pkg/logx"
)

var berlin = time.FixedZone("CEST", 2*60*60)

func sampleSnapshot() Snapshot {
	snap := EmptySnapshot()
	snap.Lessons["1"] = domain.Lesson{
		ID: "1", Text: "الدرس الأول <b>", At: time.Date(2025, 7, 1, 8, 0, 0, 0, berlin),
		TopicID: 12, UserID: 42, GroupChatID: -1001,
	}
	snap.Lessons["3"] = domain.Lesson{
		ID: "3", Text: "second", ImageFileID: "AgACAg", At: time.Date(2025, 7, 2, 18, 30, 0, 0, berlin),
		TopicID: 0, UserID: 43,
	}
	snap.Preferences["42"] = domain.Preference{Language: domain.LanguageArabic}
	snap.NextID = 3
	return snap
}

func assertSnapshotEqual(t *testing.T, want, got Snapshot) {
	t.Helper()
	require.Len(t, got.Lessons, len(want.Lessons))
	for id, w := range want.Lessons {
		g, ok := got.Lessons[id]
		require.True(t, ok, "lesson %s missing", id)
		assert.True(t, w.At.Equal(g.At), "lesson %s time %v != %v", id, w.At, g.At)
		w.At, g.At = time.Time{}, time.Time{}
		assert.Equal(t, w, g)
	}
	assert.Equal(t, want.Preferences, got.Preferences)
	assert.Equal(t, want.NextID, got.NextID)
}

func openTestStore(t *testing.T, driver string) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lessons.json")
	if driver == DriverSQLite {
		path = filepath.Join(dir, "studybot.db")
	}
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, dir
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{DriverFile, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st, _ := openTestStore(t, driver)
			ctx := context.Background()

			want := sampleSnapshot()
			require.NoError(t, st.Save(ctx, want))

			got, err := st.Load(ctx)
			require.NoError(t, err)
			assertSnapshotEqual(t, want, got)

			// Full rewrite: removed items disappear.
			delete(want.Lessons, "1")
			require.NoError(t, st.Save(ctx, want))
			got, err = st.Load(ctx)
			require.NoError(t, err)
			assertSnapshotEqual(t, want, got)
		})
	}
}

func TestLoadMissingFilesIsEmpty(t *testing.T) {
	t.Parallel()

	st, _ := openTestStore(t, DriverFile)
	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Lessons)
	assert.Empty(t, snap.Preferences)
	assert.Zero(t, snap.NextID)
}

func TestLoadDegradesPerCollection(t *testing.T) {
	t.Parallel()

	st, dir := openTestStore(t, DriverFile)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, sampleSnapshot()))

	// Corrupt only the lessons document.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lessons.json"), []byte("{not json"), 0o644))

	snap, err := st.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.Empty(t, snap.Lessons)
	assert.Equal(t, domain.LanguageArabic, snap.Preferences["42"].Language)
	assert.Equal(t, uint64(3), snap.NextID)
}

func TestLoadRejectsWrongTypedLessons(t *testing.T) {
	t.Parallel()

	st, dir := openTestStore(t, DriverFile)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, sampleSnapshot()))

	doc := `{"1": {"text": "a", "image_file_id": null, "datetime": "2025-07-01T08:00:00+02:00", "topic_id": "12", "user_id": 1}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lessons.json"), []byte(doc), 0o644))

	snap, err := st.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.Empty(t, snap.Lessons, "a partly decoded document must not be admitted")
	assert.Equal(t, domain.LanguageArabic, snap.Preferences["42"].Language)
}

func TestLoadNormalizesLanguageCodes(t *testing.T) {
	t.Parallel()

	st, dir := openTestStore(t, DriverFile)
	users := `{"1": {"language": "EN"}, "2": {"language": "lang_ar"}, "3": {"language": "fr"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte(users), 0o644))

	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Preference{
		"1": {Language: domain.LanguageEnglish},
		"2": {Language: domain.LanguageArabic},
	}, snap.Preferences)
}

func TestFileDocumentsAreReadable(t *testing.T) {
	t.Parallel()

	st, dir := openTestStore(t, DriverFile)
	require.NoError(t, st.Save(context.Background(), sampleSnapshot()))

	b, err := os.ReadFile(filepath.Join(dir, "lessons.json"))
	require.NoError(t, err)
	doc := string(b)
	assert.Contains(t, doc, "الدرس الأول <b>", "unicode and markup are written verbatim")
	assert.Contains(t, doc, `"datetime": "2025-07-01T08:00:00+02:00"`)
	assert.Contains(t, doc, `"image_file_id": null`)
	assert.Contains(t, doc, `"group_chat_id": -1001`)

	users, err := os.ReadFile(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"42":{"language":"ar"}}`, string(users))

	// No temp files left behind by the atomic writes.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

func TestAppendAudit(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{DriverFile, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st, _ := openTestStore(t, driver)
			ctx := context.Background()
			require.NoError(t, st.AppendAudit(ctx, AuditEntry{Action: "lesson.added", LessonID: "1", ActorID: 42}))
			require.NoError(t, st.AppendAudit(ctx, AuditEntry{Action: "lesson.deleted", LessonID: "1"}))
		})
	}
}

func TestExportDocument(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot()
	at := time.Date(2025, 6, 30, 21, 5, 9, 0, berlin)
	b, err := EncodeExport(snap.Lessons, at)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"export_date": "2025-06-30T21:05:09+02:00"`)

	lessons, gotAt, err := DecodeExport(b)
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assertSnapshotEqual(t, Snapshot{Lessons: snap.Lessons}, Snapshot{Lessons: lessons})

	assert.Equal(t, "lessons_backup_20250630_210509.json", ExportFileName(at))
}

func TestSecondWriterIsLockedOut(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{DriverFile, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			cfg := Config{Driver: driver, Path: filepath.Join(dir, "lessons.json")}
			ctx := context.Background()

			first, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			require.NoError(t, first.Save(ctx, sampleSnapshot()))

			_, err = Open(cfg, logx.Nop())
			require.ErrorIs(t, err, ErrLocked)

			ro := cfg
			ro.ReadOnly = true
			reader, err := Open(ro, logx.Nop())
			require.NoError(t, err)
			snap, err := reader.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, snap.Lessons, 2)
			assert.ErrorIs(t, reader.Save(ctx, EmptySnapshot()), ErrReadOnly)
			assert.ErrorIs(t, reader.AppendAudit(ctx, AuditEntry{Action: "x"}), ErrReadOnly)
			require.NoError(t, reader.Close())

			require.NoError(t, first.Close())
			second, err := Open(cfg, logx.Nop())
			require.NoError(t, err, "the lock is released on Close")
			require.NoError(t, second.Close())
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}
