package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one daily maintenance run.
type Job interface {
	Run(ctx context.Context, at time.Time) (*Report, error)
}

// Config configures the daily scheduler.
type Config struct {
	Job       Job
	RunHour   int
	RunMinute int
	Location  *time.Location
	Logger    *slog.Logger
}

// Scheduler executes the job once a day at a fixed wall-clock time.
type Scheduler struct {
	job       Job
	runHour   int
	runMinute int
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a scheduler with sane defaults.
func New(cfg Config) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		job:       cfg.Job,
		runHour:   clampHour(cfg.RunHour),
		runMinute: clampMinute(cfg.RunMinute),
		location:  loc,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

// Start blocks running the job daily until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.job == nil {
		return
	}
	for {
		now := s.now().In(s.location)
		next := s.nextRun(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			report, err := s.job.Run(ctx, next)
			if err != nil {
				s.logger.Error("daily run failed", slog.String("error", err.Error()))
				continue
			}
			s.logger.Info("daily run finished", report.LogAttrs()...)
		}
	}
}

func (s *Scheduler) nextRun(after time.Time) time.Time {
	target := time.Date(after.Year(), after.Month(), after.Day(), s.runHour, s.runMinute, 0, 0, s.location)
	if !target.After(after) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

func clampHour(hour int) int {
	if hour < 0 {
		return 0
	}
	if hour > 23 {
		return 23
	}
	return hour
}

func clampMinute(minute int) int {
	if minute < 0 {
		return 0
	}
	if minute > 59 {
		return 59
	}
	return minute
}
