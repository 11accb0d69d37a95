// Package events defines the payloads exchanged over Kafka between the scheduler, API and workers.
package events

import (
	"fmt"
	"time"

	"example.com/progressreports/internal/domain"
)

// Event types carried in the event_type header.
const (
	TypeReportRequested = "report.requested"
	TypeProfileUpdated  = "profile.updated"
)

// ReportRequested is the wire form of a report job.
type ReportRequested struct {
	JobID       string     `json:"job_id"`
	UserID      string     `json:"user_id"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Kind        string     `json:"kind"`
	Trigger     string     `json:"trigger"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// NewReportRequested encodes a job for the queue.
func NewReportRequested(job domain.ReportJob) ReportRequested {
	return ReportRequested{
		JobID:       job.ID,
		UserID:      job.UserID,
		WindowStart: job.Window.Start,
		WindowEnd:   job.Window.End,
		Kind:        string(job.Kind),
		Trigger:     string(job.Trigger),
		EnqueuedAt:  job.EnqueuedAt,
		ExpiresAt:   job.ExpiresAt,
	}
}

// Job validates the payload and converts it back into a domain job.
func (e ReportRequested) Job() (domain.ReportJob, error) {
	if e.UserID == "" {
		return domain.ReportJob{}, fmt.Errorf("report job %s: missing user_id", e.JobID)
	}
	window, err := domain.NewReportingWindow(e.WindowStart, e.WindowEnd)
	if err != nil {
		return domain.ReportJob{}, fmt.Errorf("report job %s: %w", e.JobID, err)
	}
	kind, err := domain.ParseReportKind(e.Kind)
	if err != nil {
		return domain.ReportJob{}, fmt.Errorf("report job %s: %w", e.JobID, err)
	}
	return domain.ReportJob{
		ID:         e.JobID,
		UserID:     e.UserID,
		Window:     window,
		Kind:       kind,
		Trigger:    domain.JobTrigger(e.Trigger),
		EnqueuedAt: e.EnqueuedAt,
		ExpiresAt:  e.ExpiresAt,
	}, nil
}
