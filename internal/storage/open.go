package storage

import (
	"errors"
	"fmt"
	"strings"

	"studybot/pkg/logx"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

var (
	// ErrLocked means another process holds the store open for writing.
	ErrLocked = errors.New("store is in use by another process")
	// ErrReadOnly is returned by writes to a store opened with ReadOnly.
	ErrReadOnly = errors.New("store is read-only")
)

// Open builds the configured driver. Unless cfg.ReadOnly is set, the store
// holds an exclusive lock on <path>.lock until Close, so a second writer
// fails with ErrLocked instead of overwriting the first one's state.
func Open(cfg Config, log logx.Logger) (Store, error) {
	log = log.OrNop()
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	cfg.Path = strings.TrimSpace(cfg.Path)

	var open func(Config, logx.Logger) (Store, error)
	switch driver {
	case "", DriverFile:
		if cfg.Path == "" {
			cfg.Path = "lessons.json"
		}
		open = openFile
	case DriverSQLite, "sqlite3":
		if cfg.Path == "" {
			return nil, errors.New("storage.path is required for the sqlite driver")
		}
		open = openSQLite
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}

	if cfg.ReadOnly {
		st, err := open(cfg, log)
		if err != nil {
			return nil, err
		}
		return readOnlyStore{Store: st}, nil
	}

	lk, err := acquireLock(cfg.Path + ".lock")
	if err != nil {
		return nil, err
	}
	st, err := open(cfg, log)
	if err != nil {
		_ = lk.release()
		return nil, err
	}
	return &lockedStore{Store: st, lock: lk}, nil
}

type lockedStore struct {
	Store
	lock *fileLock
}

func (s *lockedStore) Close() error {
	err := s.Store.Close()
	if s.lock != nil {
		err = errors.Join(err, s.lock.release())
		s.lock = nil
	}
	return err
}
