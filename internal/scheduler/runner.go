package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TimeOfDay is a wall-clock trigger time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseWeekday parses an English weekday name such as "sunday" or "Sun".
func ParseWeekday(value string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", value)
}

// NextDaily returns the first trigger strictly after after.
func NextDaily(after time.Time, at TimeOfDay, loc *time.Location) time.Time {
	local := after.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour, at.Minute, 0, 0, loc)
	if !next.After(after) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}

// NextWeekly returns the first trigger on weekday strictly after after.
func NextWeekly(after time.Time, weekday time.Weekday, at TimeOfDay, loc *time.Location) time.Time {
	next := NextDaily(after, at, loc)
	for next.Weekday() != weekday {
		local := next
		next = time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}

// RunnerConfig controls trigger times.
type RunnerConfig struct {
	DailyAt          TimeOfDay
	RetentionWeekday time.Weekday
	RetentionKeep    int
}

// Runner fires the due-check daily and retention weekly.
type Runner struct {
	due       *DueCheck
	retention *Retention
	cfg       RunnerConfig
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(due *DueCheck, retention *Retention, cfg RunnerConfig, opts ...Option) *Runner {
	o := buildOptions(opts)
	return &Runner{
		due:       due,
		retention: retention,
		cfg:       cfg,
		loc:       o.loc,
		logger:    o.logger,
		now:       o.now,
	}
}

// RunDueCheckNow runs the due-check once.
func (r *Runner) RunDueCheckNow(ctx context.Context) Summary {
	return r.due.Run(ctx)
}

// RunRetentionNow runs retention once with the configured keep count.
func (r *Runner) RunRetentionNow(ctx context.Context) Summary {
	return r.retention.Run(ctx, r.cfg.RetentionKeep)
}

// Start blocks, firing each job at its next trigger time until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	for {
		now := r.now()
		nextDue := NextDaily(now, r.cfg.DailyAt, r.loc)
		nextRetention := NextWeekly(now, r.cfg.RetentionWeekday, r.cfg.DailyAt, r.loc)
		next := nextDue
		if nextRetention.Before(next) {
			next = nextRetention
		}
		r.logger.Info("scheduler sleeping", zap.Time("next_due_check", nextDue), zap.Time("next_retention", nextRetention))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if !nextDue.After(next) {
			r.RunDueCheckNow(ctx)
		}
		if !nextRetention.After(next) {
			r.RunRetentionNow(ctx)
		}
	}
}
