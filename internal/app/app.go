package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"studybot/internal/bot"
	"studybot/internal/config"
	"studybot/internal/delivery"
	"studybot/internal/dispatch"
	"studybot/internal/domain"
	"studybot/internal/eventbus"
	"studybot/internal/i18n"
	"studybot/internal/intake"
	"studybot/internal/lessons"
	"studybot/internal/notifier"
	"studybot/internal/observability/ops"
	rtsup "studybot/internal/runtime/supervisor"
	"studybot/internal/storage"
	kit "studybot/internal/transport"
	telegram "studybot/internal/transport/telegram/adapter"
	"studybot/internal/transport/telegram/router"
	"studybot/pkg/logx"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor
	sups *rtsup.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	router  *router.Router

	repo     *lessons.Repository
	deliv    *delivery.Channel
	scanner  *dispatch.Scanner
	sessions *intake.Sessions
	notif    *notifier.Service
	ops      *ops.Service

	started time.Time
	updates chan kit.Update
}

// NewApp loads the config and builds every component. Only a missing bot
// token or an unusable config aborts; a degraded store load is logged and
// the bot starts with whatever could be read.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.RequireToken(cfg); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level).Component("telegram"))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	bus := eventbus.New()

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(scfg, log)
	if err != nil {
		return nil, err
	}

	lang, ok := domain.ParseLanguage(cfg.Intake.DefaultLanguage)
	if !ok {
		lang = domain.DefaultLanguage
	}
	repo, err := lessons.Open(context.Background(), store, log,
		lessons.WithBus(bus),
		lessons.WithDefaultLanguage(lang),
	)
	if err != nil {
		log.Warn("starting with a partially loaded store", logx.Err(err))
	}

	dcfg, err := mapDeliveryConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	deliv := delivery.New(dcfg, ad, log)

	sccfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	scanner := dispatch.New(sccfg, repo, deliv, log, dispatch.WithBus(bus))

	ttl, err := sessionTTL(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sessions := intake.NewSessions(ttl)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		sups:     rtsup.NewRegistry(),
		log:      log.Component("app"),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		repo:     repo,
		deliv:    deliv,
		scanner:  scanner,
		sessions: sessions,
		notif:    notifier.New(ncfg, ad, log, bus, notifier.WithLocation(loc)),
		updates:  make(chan kit.Update, 256),
	}
	a.ops = ops.New(ocfg, log, a.status)
	a.router = router.New(ad, log, router.Options{Registry: a.sups})

	bot.New(bot.Deps{
		Repo:     repo,
		Catalog:  i18n.New(lang),
		Machine:  intake.NewMachine(loc),
		Sessions: sessions,
		Scanner:  scanner,
		Log:      log,
	}).Register(a.router)

	return a, nil
}

// Done is closed once the app's run context ends: on Stop or on the first
// fatal error of a supervised goroutine.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.sups.Set("app", a.sup)

	a.cfgm.SetLogger(a.log.Component("config"))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return errors.Join(config.Validate(cfg), config.RequireToken(cfg))
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sups.Set("telegram.adapter", a.adapter.Supervisor())

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if err := a.scanner.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
		a.sups.Set("notifier", a.notif.Supervisor())
	}
	a.ops.Start(a.sup.Context())
	a.sups.Set("ops", a.ops.Supervisor())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// keep only the latest of a burst
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if err := a.router.PublishMenu(a.sup.Context()); err != nil {
		a.log.Warn("command menu publish failed", logx.Err(err))
	}

	a.notifyReady()
	a.log.Info("app started",
		logx.Int("lessons", a.repo.Len()),
		logx.Bool("dispatch", a.scanner.Enabled()),
		logx.Bool("alerts", a.notif.Enabled()),
	)
	return nil
}

// applyConfig pushes a reloaded config into the live components. Storage,
// token and timezone changes only take effect after a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for key, changed := range map[string]bool{
		"storage":                 !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage),
		"telegram.token":          oldCfg.Telegram.Token != newCfg.Telegram.Token,
		"telegram.poll_timeout":   oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout,
		"dispatch.timezone":       oldCfg.Dispatch.Timezone != newCfg.Dispatch.Timezone,
		"intake.default_language": oldCfg.Intake.DefaultLanguage != newCfg.Intake.DefaultLanguage,
	} {
		if changed {
			a.log.Warn("config change needs a restart to take effect", logx.String("key", key))
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if dc, err := mapDeliveryConfig(newCfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.deliv.Apply(dc)
	}

	if sc, err := mapDispatchConfig(newCfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.scanner.Apply(ctx, sc)
	}

	if ttl, err := sessionTTL(newCfg); err != nil {
		a.log.Warn("invalid intake config; keeping previous", logx.Err(err))
	} else {
		a.sessions.SetTTL(ttl)
	}

	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(nc)
		switch isEnabled := a.notif.Enabled(); {
		case wasEnabled && !isEnabled:
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
			a.sups.Delete("notifier")
		case !wasEnabled && isEnabled:
			a.notif.Start(ctx)
			a.sups.Set("notifier", a.notif.Supervisor())
		}
	}

	if oc, err := mapOpsConfig(newCfg); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
		a.sups.Set("ops", a.ops.Supervisor())
	}

	fields := append([]logx.Field{logx.Strs("changed", sections)}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.notifyStopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scanner", 5*time.Second, func(c context.Context) error { a.scanner.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("ops", 2*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
