// Package domain defines the report pipeline's types and the read/write service behind the API.
package domain

import (
	"context"
	"time"
)

// ReportRepository captures persistence operations for progress reports.
type ReportRepository interface {
	Create(ctx context.Context, report *ProgressReport) error
	Save(ctx context.Context, report *ProgressReport) error
	Get(ctx context.Context, userID, reportID string) (*ProgressReport, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ProgressReport, *Cursor, error)
	SetRead(ctx context.Context, userID, reportID string, read bool) (bool, error)
	Delete(ctx context.Context, userID, reportID string) (bool, error)
	ListUsersWithReports(ctx context.Context) ([]string, error)
	PruneUser(ctx context.Context, userID string, keep int) (int, error)
}

// SettingsRepository captures persistence operations for cadence settings.
type SettingsRepository interface {
	Get(ctx context.Context, userID string) (*CadenceSettings, error)
	Upsert(ctx context.Context, settings CadenceSettings) error
	ListEnabled(ctx context.Context) ([]CadenceSettings, error)
}

// Service orchestrates report reads and settings updates for the API.
type Service struct {
	reports   ReportRepository
	settings  SettingsRepository
	queue     JobQueue
	loc       *time.Location
	jobExpiry time.Duration
	now       func() time.Time
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithLocation sets the timezone used for calendar dates.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithManualJobExpiry bounds how long an on-demand job may wait in the queue.
func WithManualJobExpiry(d time.Duration) ServiceOption {
	return func(s *Service) { s.jobExpiry = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(reports ReportRepository, settings SettingsRepository, queue JobQueue, opts ...ServiceOption) *Service {
	s := &Service{
		reports:   reports,
		settings:  settings,
		queue:     queue,
		loc:       time.UTC,
		jobExpiry: time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the configured report timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// GetReport fetches a single report owned by userID.
func (s *Service) GetReport(ctx context.Context, userID, reportID string) (*ProgressReport, error) {
	report, err := s.reports.Get(ctx, userID, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrReportNotFound
	}
	return report, nil
}

// ListReports returns the user's reports newest first with cursor pagination.
func (s *Service) ListReports(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ProgressReport, *Cursor, error) {
	return s.reports.ListByUser(ctx, userID, cursor, limit)
}

// SetReportRead toggles the read flag without touching any other field.
func (s *Service) SetReportRead(ctx context.Context, userID, reportID string, read bool) error {
	found, err := s.reports.SetRead(ctx, userID, reportID, read)
	if err != nil {
		return err
	}
	if !found {
		return ErrReportNotFound
	}
	return nil
}

// DeleteReport removes a report at the user's request.
func (s *Service) DeleteReport(ctx context.Context, userID, reportID string) error {
	found, err := s.reports.Delete(ctx, userID, reportID)
	if err != nil {
		return err
	}
	if !found {
		return ErrReportNotFound
	}
	return nil
}

// GetSettings returns the user's cadence settings.
func (s *Service) GetSettings(ctx context.Context, userID string) (*CadenceSettings, error) {
	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, ErrSettingsNotFound
	}
	return settings, nil
}

// UpdateSettingsInput captures a settings change from the API layer.
type UpdateSettingsInput struct {
	UserID       string
	IntervalDays int
	Kind         ReportKind
	Enabled      bool
}

// UpdateSettings validates and stores cadence settings. First-time settings are due tomorrow.
func (s *Service) UpdateSettings(ctx context.Context, input UpdateSettingsInput) (*CadenceSettings, error) {
	now := s.now()
	existing, err := s.settings.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	var updated CadenceSettings
	if existing == nil {
		updated, err = NewCadenceSettings(input.UserID, input.IntervalDays, input.Kind, input.Enabled, now, s.loc)
		if err != nil {
			return nil, err
		}
	} else {
		updated = *existing
		updated.IntervalDays = input.IntervalDays
		updated.Kind = input.Kind
		updated.Enabled = input.Enabled
		updated.UpdatedAt = now.UTC()
		if err := updated.Validate(); err != nil {
			return nil, err
		}
		if updated.Enabled && updated.NextDueDate == nil {
			tomorrow := DateOf(now, s.loc).AddDate(0, 0, 1)
			updated.NextDueDate = &tomorrow
		}
	}

	if err := s.settings.Upsert(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// RequestReportInput describes an on-demand report. A nil window defaults to the
// user's interval (or the default interval) ending now.
type RequestReportInput struct {
	UserID string
	Kind   ReportKind
	Window *ReportingWindow
}

// RequestReport enqueues an on-demand orchestration run. Duplicate requests for the same
// window are not deduplicated.
func (s *Service) RequestReport(ctx context.Context, input RequestReportInput) (ReportJob, error) {
	now := s.now()
	window := input.Window
	if window == nil {
		days := DefaultIntervalDays
		if settings, err := s.settings.Get(ctx, input.UserID); err != nil {
			return ReportJob{}, err
		} else if settings != nil {
			days = settings.IntervalDays
		}
		w, err := WindowEndingAt(now, days)
		if err != nil {
			return ReportJob{}, err
		}
		window = &w
	}
	job := NewReportJob(input.UserID, *window, input.Kind, TriggerManual, now)
	return s.queue.Enqueue(ctx, job, JobOptions{ExpiresAfter: s.jobExpiry})
}
