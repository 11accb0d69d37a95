// Package scheduler decides who is due for a report and prunes old reports.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/progressreports/internal/domain"
)

// DefaultScheduledJobExpiry is how long a scheduled job may wait before it is dropped.
const DefaultScheduledJobExpiry = 2 * time.Hour

// Summary counts the per-user outcomes of one scheduler pass.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	Removed   int
	// Err joins the per-user errors; nil when every user succeeded.
	Err error
}

func (s *Summary) fail(err error) {
	s.Failed++
	s.Err = errors.Join(s.Err, err)
}

// DueCheck enqueues one report job per due user.
type DueCheck struct {
	settings domain.SettingsRepository
	queue    domain.JobQueue
	expiry   time.Duration
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// Option customises scheduler jobs.
type Option func(*options)

type options struct {
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
	expiry time.Duration
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLocation sets the timezone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithJobExpiry sets how long enqueued jobs stay valid.
func WithJobExpiry(d time.Duration) Option {
	return func(o *options) { o.expiry = d }
}

func buildOptions(opts []Option) options {
	o := options{loc: time.UTC, logger: zap.NewNop(), now: time.Now, expiry: DefaultScheduledJobExpiry}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewDueCheck constructs the daily due-check job.
func NewDueCheck(settings domain.SettingsRepository, queue domain.JobQueue, opts ...Option) *DueCheck {
	o := buildOptions(opts)
	return &DueCheck{
		settings: settings,
		queue:    queue,
		expiry:   o.expiry,
		loc:      o.loc,
		logger:   o.logger,
		now:      o.now,
	}
}

// Run scans enabled settings and enqueues a job for each due user. The next due date is
// advanced before the job is enqueued, so re-running on the same day never enqueues twice;
// a job that later fails skips that cycle.
func (d *DueCheck) Run(ctx context.Context) Summary {
	var summary Summary
	now := d.now()
	today := domain.DateOf(now, d.loc)

	all, err := d.settings.ListEnabled(ctx)
	if err != nil {
		d.logger.Error("list enabled cadence settings", zap.Error(err))
		summary.fail(fmt.Errorf("list enabled settings: %w", err))
		recordRun("due_check", summary)
		return summary
	}

	for _, settings := range all {
		if ctx.Err() != nil {
			summary.fail(ctx.Err())
			break
		}
		summary.Processed++
		if !settings.IsDue(today) {
			summary.Skipped++
			continue
		}
		if err := d.schedule(ctx, settings, now, today); err != nil {
			d.logger.Error("schedule report", zap.String("user_id", settings.UserID), zap.Error(err))
			summary.fail(fmt.Errorf("user %s: %w", settings.UserID, err))
			continue
		}
		summary.Succeeded++
	}

	d.logger.Info("due check finished",
		zap.Int("processed", summary.Processed),
		zap.Int("enqueued", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	recordRun("due_check", summary)
	return summary
}

func (d *DueCheck) schedule(ctx context.Context, settings domain.CadenceSettings, now, today time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	window, err := domain.WindowEndingAt(now, settings.IntervalDays)
	if err != nil {
		return err
	}

	settings.Advance(today, now)
	if err := d.settings.Upsert(ctx, settings); err != nil {
		return fmt.Errorf("advance next due date: %w", err)
	}

	job := domain.NewReportJob(settings.UserID, window, settings.Kind, domain.TriggerSchedule, now)
	if _, err := d.queue.Enqueue(ctx, job, domain.JobOptions{ExpiresAfter: d.expiry}); err != nil {
		return fmt.Errorf("enqueue report job: %w", err)
	}
	return nil
}
