package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studybot/internal/config"
	"studybot/internal/domain"
	"studybot/internal/lessons"
	"studybot/internal/storage"
	"studybot/pkg/logx"
)

// Offline gives operator tooling the repository without starting the bot.
// It needs no token and does not poll Telegram.
type Offline struct {
	Repo     *lessons.Repository
	Location *time.Location

	store storage.Store
}

// OpenOffline loads the config at cfgPath and opens its store. A writable
// open fails with storage.ErrLocked while the bot is running; readOnly opens
// always succeed but cannot change anything.
func OpenOffline(ctx context.Context, cfgPath string, log logx.Logger, readOnly bool) (*Offline, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	scfg.ReadOnly = readOnly
	store, err := storage.Open(scfg, log)
	if errors.Is(err, storage.ErrLocked) {
		return nil, fmt.Errorf("%w; stop the bot before changing lessons", err)
	}
	if err != nil {
		return nil, err
	}
	lang, ok := domain.ParseLanguage(cfg.Intake.DefaultLanguage)
	if !ok {
		lang = domain.DefaultLanguage
	}
	repo, err := lessons.Open(ctx, store, log, lessons.WithDefaultLanguage(lang))
	if err != nil {
		log.Warn("store partially loaded", logx.Err(err))
	}
	return &Offline{Repo: repo, Location: loc, store: store}, nil
}

func (o *Offline) Close() error { return o.store.Close() }
