package app

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"herald/internal/accounts"
	"herald/internal/config"
	"herald/internal/console"
	"herald/internal/dispatch"
	"herald/internal/journal"
	"herald/internal/platform"
	"herald/internal/schedule"
	"herald/internal/session"
	"herald/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store    journal.Store
	sessions *session.Manager
	registry *accounts.Registry
	disp     *dispatch.Dispatcher
	sched    *schedule.Service
	cons     *console.Console

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: log, logs: logs}

	pollTimeout, err := config.ParseDurationOrDefault("console.poll_timeout", cfg.Console.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	// The console is created first: logins block on its challenge registry
	// and alerts travel through it. Its handlers call back into a, which is
	// fully assembled before polling starts.
	cons, err := console.New(console.Config{
		Token:        cfg.Console.Token,
		OwnerUserIDs: cfg.Console.OwnerUserIDs,
		PollTimeout:  pollTimeout,
	}, a, log.With(logx.String("comp", "console")))
	if err != nil {
		return nil, err
	}
	a.cons = cons

	if cfg.Journal != nil {
		busy, err := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err := journal.Open(journal.Config{
			Driver:      cfg.Journal.Driver,
			Path:        cfg.Journal.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "journal")))
		if err != nil {
			return nil, err
		}
		a.store = store
		if store != nil {
			log.Info("delivery journal enabled", logx.String("driver", cfg.Journal.Driver))
		}
	}

	dialer, err := platform.Open(platform.Settings{
		Driver:  cfg.Platform.Driver,
		APIID:   cfg.Platform.APIID,
		APIHash: cfg.Platform.APIHash,
	}, log.With(logx.String("comp", "platform")))
	if err != nil {
		return nil, err
	}

	creds, err := session.NewCredentials(filepath.Join(cfg.DataDir, "sessions"),
		log.With(logx.String("comp", "credentials")))
	if err != nil {
		return nil, err
	}

	challengeTimeout, err := config.ParseDurationOrDefault("challenge_timeout", cfg.ChallengeTimeout, session.DefaultChallengeTimeout)
	if err != nil {
		return nil, err
	}
	a.sessions = session.NewManager(dialer, creds, cons.Prompts(), cons, challengeTimeout,
		log.With(logx.String("comp", "session")))

	a.registry = accounts.NewRegistry(filepath.Join(cfg.DataDir, "accounts.json"),
		a.sessions, log.With(logx.String("comp", "accounts")))

	a.disp = dispatch.New(a.registry, a.sessions, a.store, dispatch.Config{
		RatePerSec: cfg.Dispatch.RatePerSec,
		ScratchDir: cfg.Dispatch.ScratchDir,
	}, log.With(logx.String("comp", "dispatch")))

	a.sched = schedule.New(a.disp, a.registry, log.With(logx.String("comp", "schedule")))
	a.sched.Apply(cfg.Schedules)

	return a, nil
}

// RegisterAccount logs a new account in and persists it.
func (a *App) RegisterAccount(ctx context.Context) (accounts.Account, error) {
	return a.registry.Register(ctx)
}

func (a *App) ListAccounts() []accounts.Account { return a.registry.List() }

func (a *App) ActiveAccountIDs() []string { return a.registry.ActiveIDs() }

// AssignDestination resolves ref via the account's session and appends it
// to the account's destination set.
func (a *App) AssignDestination(ctx context.Context, accountID, ref string) (accounts.AssignOutcome, error) {
	return a.registry.Assign(ctx, accountID, ref)
}

// Broadcast sends to every destination of the requested accounts.
func (a *App) Broadcast(ctx context.Context, req dispatch.Request) dispatch.Report {
	return a.disp.Broadcast(ctx, req)
}

// Start begins console polling, schedule triggering and config watching.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cons.Start()
	a.sched.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.log.Info("started")
	return nil
}

// applyReload applies the hot-reloadable config sections. Everything else
// (data_dir, platform, journal, console token) requires a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg.Logging))
	a.sched.Apply(cfg.Schedules)
	a.log.Info("config reapplied",
		logx.Int("schedules", len(cfg.Schedules)),
		logx.String("log_level", cfg.Logging.Level))
}

// Stop shuts everything down; bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cancel != nil {
		a.cancel()
	}

	a.sched.Stop(ctx)
	a.cons.Stop()
	a.sessions.CloseAll(ctx)
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	a.wg.Wait()
	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

func mapLoggingConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}
