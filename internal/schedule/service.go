package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/config"
	"herald/internal/dispatch"
	"herald/pkg/logx"
)

// Broadcaster is the dispatch side the scheduler drives. Satisfied by
// *dispatch.Dispatcher.
type Broadcaster interface {
	Broadcast(ctx context.Context, req dispatch.Request) dispatch.Report
}

// AccountLister supplies account IDs for entries that name no accounts.
type AccountLister interface {
	ActiveIDs() []string
}

type Service struct {
	disp     Broadcaster
	accounts AccountLister
	log      logx.Logger

	mu      sync.Mutex
	entries []config.ScheduleConfig
	c       *cron.Cron

	// runCtx is the lifetime of Start; jobs fired by cron inherit it so
	// Stop cancels in-flight broadcasts too.
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(disp Broadcaster, accounts AccountLister, log logx.Logger) *Service {
	return &Service{
		disp:     disp,
		accounts: accounts,
		log:      log,
	}
}

// Apply replaces the entry set. If the service is running, cron is
// restarted with the new jobs.
func (s *Service) Apply(entries []config.ScheduleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]config.ScheduleConfig(nil), entries...)
	if s.c != nil {
		s.restartLocked()
	}
}

// Start begins triggering entries. No-op if already running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.startLocked()
}

// Stop halts triggering and cancels any in-flight scheduled broadcast.
// Waits for running jobs up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) startLocked() {
	s.c = cron.New()
	registered := 0
	for i := range s.entries {
		e := s.entries[i]
		// Specs are parsed with the same grammar config validation uses,
		// so a rejection here means Apply was fed an unvalidated entry.
		spec, err := config.ParseScheduleSpec(e.Schedule)
		if err != nil {
			s.log.Warn("schedule entry rejected",
				logx.String("spec", e.Schedule), logx.Err(err))
			continue
		}
		s.c.Schedule(spec, cron.FuncJob(func() { s.run(e) }))
		registered++
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("entries", registered))
}

func (s *Service) restartLocked() {
	if c := s.c; c != nil {
		// Let running jobs finish in the background; new jobs use the
		// fresh cron instance.
		go func() { <-c.Stop().Done() }()
	}
	s.startLocked()
}

func (s *Service) run(e config.ScheduleConfig) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	ids := e.Accounts
	if len(ids) == 0 {
		ids = s.accounts.ActiveIDs()
	}
	if len(ids) == 0 {
		s.log.Debug("scheduled broadcast skipped, no accounts",
			logx.String("spec", e.Schedule))
		return
	}

	start := time.Now()
	rep := s.disp.Broadcast(ctx, dispatch.Request{
		Message:    e.Message,
		AccountIDs: ids,
	})
	s.log.Info("scheduled broadcast done",
		logx.String("spec", e.Schedule),
		logx.Any("accounts", ids),
		logx.Int("delivered", rep.Delivered()),
		logx.Int("failed", rep.Failed()),
		logx.Int("skipped_accounts", len(rep.SkippedAccounts)),
		logx.Duration("took", time.Since(start)))
}
