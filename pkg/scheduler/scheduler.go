// Package scheduler runs the time based automation rules on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/ruleflow/pkg/automation"
)

// Runner executes one pass over the time based rules.
type Runner interface {
	RunTimeBased(ctx context.Context, now time.Time) ([]automation.RuleRunResult, error)
}

type Scheduler struct {
	runner Runner
	expr   string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	entry  cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates expr, a standard five field cron expression or a
// descriptor such as "@every 1m".
func New(runner Runner, expr string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", expr, err)
	}

	return &Scheduler{
		runner: runner,
		expr:   expr,
		logger: logger.With("module", "scheduler"),
		now:    time.Now,
	}, nil
}

// Start schedules the job and returns immediately. A run still in
// progress when the next tick fires causes that tick to be skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	entry, err := s.cron.AddFunc(s.expr, func() { s.RunOnce(s.ctx) })
	if err != nil {
		s.cron = nil
		s.cancel()

		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entry = entry
	s.cron.Start()

	s.logger.InfoContext(ctx, "Scheduler started", "cron", s.expr, "entry_id", entry)

	return nil
}

// Stop cancels the running pass, if any, and waits for it to return or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	s.cancel()

	select {
	case <-c.Stop().Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the job fires next. It is zero before Start.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return time.Time{}
	}

	return s.cron.Entry(s.entry).Next
}

// RunOnce performs one pass and logs the outcome of every rule.
func (s *Scheduler) RunOnce(ctx context.Context) []automation.RuleRunResult {
	started := s.now()

	results, err := s.runner.RunTimeBased(ctx, started)
	if err != nil {
		s.logger.ErrorContext(ctx, "Time based run failed", "error", err)

		return results
	}

	for _, r := range results {
		attrs := []any{
			"rule", r.RuleCode,
			"status", r.Status,
			"processed", r.Processed,
			"advanced", r.Advanced,
		}

		switch r.Status {
		case automation.StatusFailed:
			s.logger.WarnContext(ctx, "Time based rule failed", append(attrs, "failures", len(r.Failures))...)
		case automation.StatusSkipped:
			s.logger.DebugContext(ctx, "Time based rule skipped", append(attrs, "reason", r.Reason)...)
		default:
			s.logger.DebugContext(ctx, "Time based rule ran", attrs...)
		}
	}

	s.logger.InfoContext(ctx, "Time based run finished", "rules", len(results), "duration", time.Since(started))

	return results
}
