package domain

import (
	"errors"
	"fmt"
	"time"
)

const (
	MinIntervalDays     = 7
	MaxIntervalDays     = 120
	DefaultIntervalDays = 7
)

var (
	// ErrIntervalOutOfRange is returned when interval_days is outside [7,120].
	ErrIntervalOutOfRange = fmt.Errorf("interval_days must be between %d and %d", MinIntervalDays, MaxIntervalDays)
	// ErrSettingsNotFound is returned when a user has no cadence settings.
	ErrSettingsNotFound = errors.New("report settings not found")
)

// CadenceSettings is the per-user report schedule.
// NextDueDate and the "today" arguments are calendar dates represented as midnight UTC.
type CadenceSettings struct {
	UserID          string
	IntervalDays    int
	Kind            ReportKind
	Enabled         bool
	LastGeneratedAt *time.Time
	NextDueDate     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewCadenceSettings creates settings scheduled for the first time: next due tomorrow.
func NewCadenceSettings(userID string, intervalDays int, kind ReportKind, enabled bool, now time.Time, loc *time.Location) (CadenceSettings, error) {
	s := CadenceSettings{
		UserID:       userID,
		IntervalDays: intervalDays,
		Kind:         kind,
		Enabled:      enabled,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := s.Validate(); err != nil {
		return CadenceSettings{}, err
	}
	tomorrow := DateOf(now, loc).AddDate(0, 0, 1)
	s.NextDueDate = &tomorrow
	return s, nil
}

// Validate checks the interval bound and kind. Out-of-range values are rejected, never clamped.
func (s CadenceSettings) Validate() error {
	if s.IntervalDays < MinIntervalDays || s.IntervalDays > MaxIntervalDays {
		return fmt.Errorf("%w (got %d)", ErrIntervalOutOfRange, s.IntervalDays)
	}
	if _, err := ParseReportKind(string(s.Kind)); err != nil {
		return err
	}
	return nil
}

// IsDue reports whether a report should be scheduled on the given date.
func (s CadenceSettings) IsDue(today time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueDate == nil {
		return true
	}
	return !today.Before(*s.NextDueDate)
}

// Advance moves the next due date one interval past today.
func (s *CadenceSettings) Advance(today time.Time, now time.Time) {
	next := today.AddDate(0, 0, s.IntervalDays)
	s.NextDueDate = &next
	s.UpdatedAt = now.UTC()
}

// RecordGeneration stores a successful generation and recomputes the next due date from it.
func (s *CadenceSettings) RecordGeneration(now time.Time, loc *time.Location) {
	generated := now.UTC()
	s.LastGeneratedAt = &generated
	s.Advance(DateOf(now, loc), now)
}
