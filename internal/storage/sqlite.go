package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"studybot/internal/domain"
	"studybot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the repository serializes saves anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, error) {
	snap := EmptySnapshot()
	var errs []error

	if err := s.loadLessons(ctx, snap.Lessons); err != nil {
		clear(snap.Lessons)
		errs = append(errs, &domain.PersistenceError{Op: "load", Collection: "lessons", Err: err})
	}
	if err := s.loadPreferences(ctx, snap.Preferences); err != nil {
		clear(snap.Preferences)
		errs = append(errs, &domain.PersistenceError{Op: "load", Collection: "preferences", Err: err})
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_id'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		errs = append(errs, &domain.PersistenceError{Op: "load", Collection: "meta", Err: err})
	default:
		snap.NextID, _ = strconv.ParseUint(raw, 10, 64)
	}
	return snap, errors.Join(errs...)
}

func (s *sqliteStore) loadLessons(ctx context.Context, out map[string]domain.Lesson) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, image_file_id, datetime, topic_id, user_id, group_chat_id FROM lessons`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			r   lessonRecord
			img sql.NullString
			gc  sql.NullInt64
		)
		if err := rows.Scan(&id, &r.Text, &img, &r.DateTime, &r.TopicID, &r.UserID, &gc); err != nil {
			return err
		}
		if img.Valid {
			r.ImageFileID = &img.String
		}
		if gc.Valid {
			r.GroupChatID = &gc.Int64
		}
		l, err := fromRecord(id, r)
		if err != nil {
			s.log.Warn("skipping unreadable lesson row", logx.String("lesson_id", id), logx.Err(err))
			continue
		}
		out[id] = l
	}
	return rows.Err()
}

func (s *sqliteStore) loadPreferences(ctx context.Context, out map[string]domain.Preference) error {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, language FROM preferences`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var uid, lang string
		if err := rows.Scan(&uid, &lang); err != nil {
			return err
		}
		if l, ok := domain.ParseLanguage(lang); ok {
			out[uid] = domain.Preference{Language: l}
		}
	}
	return rows.Err()
}

// Save rewrites both collections and the counter in one transaction.
func (s *sqliteStore) Save(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "save", Collection: "lessons", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = &domain.PersistenceError{Op: "save", Collection: "lessons", Err: err}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM lessons`); err != nil {
		return err
	}
	for id, l := range snap.Lessons {
		r := toRecord(l)
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO lessons(id, text, image_file_id, datetime, topic_id, user_id, group_chat_id) VALUES(?,?,?,?,?,?,?)`,
			id, r.Text, r.ImageFileID, r.DateTime, r.TopicID, r.UserID, r.GroupChatID,
		); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM preferences`); err != nil {
		return err
	}
	for uid, p := range snap.Preferences {
		if _, err = tx.ExecContext(ctx, `INSERT INTO preferences(user_id, language) VALUES(?,?)`, uid, string(p.Language)); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('next_id', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.FormatUint(snap.NextID, 10),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	e = e.withDefaults()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(id, at, actor_id, action, lesson_id, detail) VALUES(?,?,?,?,?,?)`,
		e.ID, e.At.Format(time.RFC3339Nano), e.ActorID, e.Action, nullStr(e.LessonID), nullStr(e.Detail),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
