package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"steamwatch/internal/catalog"
	"steamwatch/internal/config"
	"steamwatch/internal/notify"
	"steamwatch/internal/scheduler"
	"steamwatch/internal/steam"
	"steamwatch/internal/storage"
	kit "steamwatch/internal/transport"
	"steamwatch/internal/transport/telegram"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
)

// App wires the bot together: config, logging, storage, catalog, watchlist,
// poll engine, scheduler and the Telegram transport.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	backend storage.Store
	watch   *watch.Store
	cat     *catalog.Catalog
	engine  *watch.Engine
	disp    *notify.Dispatcher
	sched   *scheduler.Service
	adapter *telegram.Adapter

	updates chan kit.Update

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logxConfig(cfg))
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))

	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	backend, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	client := steam.NewClient(steam.Config{
		APIKey: cfg.Tracker.APIKey,
		Locale: cfg.Tracker.Locale,
	}, log.With(logx.String("comp", "steam")))

	cat := catalog.New(client, backend, cfg.Tracker.PageSize, log.With(logx.String("comp", "catalog")))

	ws, err := watch.Open(context.Background(), backend, log.With(logx.String("comp", "watchlist")))
	if err != nil {
		_ = backend.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("open watchlist: %w", err)
	}

	pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = backend.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	return &App{
		cfgMgr:  cfgMgr,
		logSvc:  logSvc,
		log:     log,
		backend: backend,
		watch:   ws,
		cat:     cat,
		engine:  watch.NewEngine(ws, client, log.With(logx.String("comp", "engine"))),
		disp:    notify.NewDispatcher(adapter, log.With(logx.String("comp", "notify"))),
		sched:   scheduler.New(log.With(logx.String("comp", "scheduler"))),
		adapter: adapter,
		updates: make(chan kit.Update, 64),
	}, nil
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	cfg := a.cfgMgr.Get()

	if err := a.adapter.Start(a.runCtx, a.updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.commandLoop(a.runCtx)
	}()

	// First catalog sync runs in the background; consumers gate on
	// AwaitReady() instead of blocking startup.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cat.Sync(a.runCtx)
	}()

	if err := a.scheduleJobs(cfg); err != nil {
		return err
	}
	a.sched.Start()

	// Config hot reload: logging and schedules can change at runtime.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sub := a.cfgMgr.Subscribe(1)
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-a.runCtx.Done():
				return
			case next := <-sub:
				if next == nil {
					continue
				}
				a.logSvc.Apply(logxConfig(next))
				if err := a.scheduleJobs(next); err != nil {
					a.log.Warn("config reload: reschedule failed", logx.Err(err))
				}
			}
		}
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(a.runCtx)
	}()

	// Best-effort command menu.
	go func() {
		if err := a.adapter.UpdateMenuCommands(a.runCtx, botCommands()); err != nil {
			a.log.Debug("menu update failed", logx.Err(err))
		}
	}()

	a.log.Info("started", logx.Int("watched_items", a.watch.Len()))
	_ = ctx
	return nil
}

func (a *App) scheduleJobs(cfg *config.Config) error {
	interval, err := config.ParseDurationOrDefault("tracker.interval", cfg.Tracker.Interval, 30*time.Minute)
	if err != nil {
		return err
	}
	resync, err := config.ParseDurationOrDefault("tracker.catalog_resync", cfg.Tracker.CatalogResync, 24*time.Hour)
	if err != nil {
		return err
	}
	if err := a.sched.SetInterval("poll", interval, func() { a.runRound(a.runCtx) }); err != nil {
		return err
	}
	return a.sched.SetInterval("catalog_resync", resync, func() { _ = a.cat.Sync(a.runCtx) })
}

// runRound executes one poll pass and delivers its notifications. It waits
// for the catalog's first sync so polling never races initialization.
func (a *App) runRound(ctx context.Context) {
	if err := a.cat.AwaitReady(ctx); err != nil {
		return
	}
	a.disp.Drain(ctx, a.engine.Run(ctx))
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.runCancel != nil {
		a.runCancel()
	}
	a.sched.Stop(ctx)
	_ = a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		a.log.Warn("shutdown wait timed out")
	}

	_ = a.backend.Close()
	_ = a.logSvc.Close()
	return nil
}
