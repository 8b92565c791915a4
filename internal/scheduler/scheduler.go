package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "steamwatch/pkg/logx"
)

// Service is a thin wrapper around cron for the bot's periodic jobs (poll
// rounds, catalog resync). Jobs are registered under a name so their
// interval can be swapped on config reload.
//
// Overlap protection is cron's SkipIfStillRunning: a tick firing while the
// previous run is still going is skipped, not queued.
type Service struct {
	log logx.Logger
	c   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cl := cronLogger{log: log}
	return &Service{
		log:     log,
		c:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl))),
		entries: map[string]cron.EntryID{},
	}
}

// SetInterval (re)registers a named job at a fixed interval. Calling it
// again with the same name replaces the previous schedule.
func (s *Service) SetInterval(name string, every time.Duration, job func()) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: interval for %q must be > 0", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.c.Remove(id)
		delete(s.entries, name)
	}
	id, err := s.c.AddFunc("@every "+every.String(), job)
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}
	s.entries[name] = id
	s.log.Info("job scheduled", logx.String("job", name), logx.Duration("every", every))
	return nil
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.entries)))
}

// Stop stops triggering and waits for running jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("scheduler stopped")
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
