package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"studybot/internal/domain"
	"studybot/pkg/logx"
)

// fileStore keeps each collection in its own JSON document.
//
// Files:
//   - <lessons>.json           lessons keyed by id
//   - <lessons>.meta.json      {"next_id": N}
//   - users.json               preferences keyed by user id
//   - <lessons>.audit.jsonl    append-only audit trail
type fileStore struct {
	log logx.Logger

	mu          sync.Mutex
	lessonsPath string
	metaPath    string
	prefsPath   string
	auditFile   *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "lessons.json"
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(path, filepath.Ext(path))

	prefs := strings.TrimSpace(cfg.PreferencesPath)
	if prefs == "" {
		prefs = filepath.Join(dir, "users.json")
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:         log,
		lessonsPath: path,
		metaPath:    prefix + ".meta.json",
		prefsPath:   prefs,
		auditFile:   af,
	}, nil
}

func (s *fileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := EmptySnapshot()
	var errs []error

	var records map[string]lessonRecord
	if err := readJSON(s.lessonsPath, &records); err != nil {
		// Unmarshal fills what it can before a type error; none of it is trusted.
		clear(records)
		errs = append(errs, &domain.PersistenceError{Op: "load", Collection: "lessons", Err: err})
	}
	for id, r := range records {
		l, err := fromRecord(id, r)
		if err != nil {
			errs = append(errs, &domain.PersistenceError{Op: "load", Collection: "lessons", Err: err})
			continue
		}
		snap.Lessons[id] = l
	}

	var prefs map[string]domain.Preference
	if err := readJSON(s.prefsPath, &prefs); err != nil {
		clear(prefs)
		errs = append(errs, &domain.PersistenceError{Op: "load", Collection: "preferences", Err: err})
	}
	for uid, p := range prefs {
		l, ok := domain.ParseLanguage(string(p.Language))
		if !ok {
			continue
		}
		snap.Preferences[uid] = domain.Preference{Language: l}
	}

	var meta metaRecord
	if err := readJSON(s.metaPath, &meta); err != nil {
		errs = append(errs, &domain.PersistenceError{Op: "load", Collection: "meta", Err: err})
	}
	snap.NextID = meta.NextID

	return snap, errors.Join(errs...)
}

func (s *fileStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := writeJSONAtomic(s.lessonsPath, toRecords(snap.Lessons)); err != nil {
		errs = append(errs, &domain.PersistenceError{Op: "save", Collection: "lessons", Err: err})
	}
	if err := writeJSONAtomic(s.metaPath, metaRecord{NextID: snap.NextID}); err != nil {
		errs = append(errs, &domain.PersistenceError{Op: "save", Collection: "meta", Err: err})
	}
	prefs := snap.Preferences
	if prefs == nil {
		prefs = map[string]domain.Preference{}
	}
	if err := writeJSONAtomic(s.prefsPath, prefs); err != nil {
		errs = append(errs, &domain.PersistenceError{Op: "save", Collection: "preferences", Err: err})
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e.withDefaults())
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

// readJSON decodes path into v. A missing file leaves v untouched and is not
// an error.
func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSONAtomic replaces path with the encoding of v via temp file + rename,
// so a crash never leaves a half-written document behind.
func writeJSONAtomic(path string, v any) error {
	b, err := encodeJSON(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
