/*
scheduler.go - Scheduled payout forecasts

PURPOSE:
  Periodically runs the payout forecast over all positions, assuming every
  KPI lands on target, and records the run. Finance gets a history of
  forecast totals without anyone pressing the button.

DESIGN:
  - robfig/cron with a standard 5-field spec or a descriptor (@daily)
  - Overlapping runs are skipped, not queued
  - Each run is recorded through Handler.RunForecast, same as manual runs

CONFIGURATION (config.Forecast):
  - Schedule:   Cron spec (default: @daily)
  - Multiplier: Payout multiplier 0-100 (default: 100)
  - Enabled:    Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewForecastScheduler(handler, "@daily", multiplier, logger)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop(ctx)

SEE ALSO:
  - handlers.go: RunForecast, Forecast endpoint (manual runs)
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ForecastScheduler runs forecasts on a cron schedule.
type ForecastScheduler struct {
	Handler    *Handler
	Schedule   string
	Multiplier decimal.Decimal
	Enabled    bool

	logger  *zap.Logger
	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
}

// NewForecastScheduler creates a new scheduler.
func NewForecastScheduler(handler *Handler, schedule string, multiplier decimal.Decimal, logger *zap.Logger) *ForecastScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastScheduler{
		Handler:    handler,
		Schedule:   schedule,
		Multiplier: multiplier,
		Enabled:    true,
		logger:     logger.Named("scheduler"),
	}
}

// Start registers the job and starts the cron loop.
func (fs *ForecastScheduler) Start() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.Enabled {
		fs.logger.Info("disabled, not starting")
		return nil
	}
	if fs.cron != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(fs.logger))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger)))

	id, err := c.AddFunc(fs.Schedule, func() {
		if _, err := fs.RunNow(context.Background()); err != nil {
			fs.logger.Warn("scheduled forecast failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid forecast schedule %q: %w", fs.Schedule, err)
	}

	fs.cron = c
	fs.entryID = id
	c.Start()

	fs.logger.Info("started",
		zap.String("schedule", fs.Schedule),
		zap.String("multiplier", fs.Multiplier.String()),
		zap.Time("next_run", c.Entry(id).Next))
	return nil
}

// Stop stops the scheduler and waits for a running forecast to finish or
// ctx to expire.
func (fs *ForecastScheduler) Stop(ctx context.Context) {
	fs.mu.Lock()
	c := fs.cron
	fs.cron = nil
	fs.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		fs.logger.Info("stopped")
	case <-ctx.Done():
		fs.logger.Warn("stop timed out with a forecast still running")
	}
}

// RunNow runs one forecast at target actuals and returns the run ID.
func (fs *ForecastScheduler) RunNow(ctx context.Context) (string, error) {
	_, run, err := fs.Handler.RunForecast(ctx, TriggerScheduled, fs.Multiplier, nil)
	return run.ID, err
}

// NextRunTime returns when the next scheduled forecast will run, or the
// zero time when the scheduler is not running.
func (fs *ForecastScheduler) NextRunTime() time.Time {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cron == nil {
		return time.Time{}
	}
	return fs.cron.Entry(fs.entryID).Next
}
