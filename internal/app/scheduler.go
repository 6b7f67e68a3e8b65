/**
 * @description
 * Cron scheduler setup for the billing passes. The scheduler owns only timer
 * lifecycle; correctness (idempotency, partial failure) lives in the runner,
 * so a manual trigger and a timer tick behave identically.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/netwatch/billing-service/internal/config"
	"github.com/netwatch/billing-service/internal/domain"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs for the billing passes.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(runner *Runner, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		runner: runner,
		logger: logger,
		config: cfg,
	}
}

// Start registers the pass jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.MonthlyPassSchedule, func() { s.runScheduled(domain.PassMonthly) }); err != nil {
		s.logger.Error("failed to schedule monthly pass", "error", err)
	} else {
		s.logger.Info("scheduled monthly pass", "schedule", s.config.MonthlyPassSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.HourlyPassSchedule, func() { s.runScheduled(domain.PassHourly) }); err != nil {
		s.logger.Error("failed to schedule hourly pass", "error", err)
	} else {
		s.logger.Info("scheduled hourly pass", "schedule", s.config.HourlyPassSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.NotificationSchedule, func() { s.runScheduled(domain.PassNotifications) }); err != nil {
		s.logger.Error("failed to schedule notification pass", "error", err)
	} else {
		s.logger.Info("scheduled notification pass", "schedule", s.config.NotificationSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler and returns its drain context.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runScheduled(pass domain.PassType) {
	ctx := context.Background()
	if _, err := s.runner.RunPass(ctx, pass, time.Now()); err != nil {
		s.logger.Error("scheduled pass failed", "pass", pass, "error", err)
	}
}
