package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobTrigger records what caused a report job to be enqueued.
type JobTrigger string

const (
	TriggerSchedule JobTrigger = "schedule"
	TriggerManual   JobTrigger = "manual"
)

// JobOptions mirrors the queue options accepted alongside a job payload.
type JobOptions struct {
	// ExpiresAfter bounds how late a job may start. Zero means the job never expires.
	ExpiresAfter time.Duration
}

// ReportJob describes one orchestration run handed to the worker pool.
type ReportJob struct {
	ID         string
	UserID     string
	Window     ReportingWindow
	Kind       ReportKind
	Trigger    JobTrigger
	EnqueuedAt time.Time
	ExpiresAt  *time.Time
}

// NewReportJob builds a job descriptor enqueued at now.
func NewReportJob(userID string, window ReportingWindow, kind ReportKind, trigger JobTrigger, now time.Time) ReportJob {
	return ReportJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		Window:     window,
		Kind:       kind,
		Trigger:    trigger,
		EnqueuedAt: now.UTC(),
	}
}

// WithOptions returns a copy of the job with its expiry derived from opts.
func (j ReportJob) WithOptions(opts JobOptions) ReportJob {
	if opts.ExpiresAfter > 0 {
		exp := j.EnqueuedAt.Add(opts.ExpiresAfter)
		j.ExpiresAt = &exp
	}
	return j
}

// Expired reports whether the job may no longer be started at now.
func (j ReportJob) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// JobQueue accepts report jobs for asynchronous execution with at-least-once delivery.
type JobQueue interface {
	Enqueue(ctx context.Context, job ReportJob, opts JobOptions) (ReportJob, error)
}
