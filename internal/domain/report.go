package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReportNotFound is returned when a report cannot be located for the user.
	ErrReportNotFound = errors.New("report not found")
	// ErrInvalidTransition is returned when a status change is attempted on a settled report.
	ErrInvalidTransition = errors.New("report status transition not allowed")
	// ErrUnknownStatus is returned when a stored status value is not recognised.
	ErrUnknownStatus = errors.New("unknown report status")
	// ErrUnknownKind is returned for unsupported report kinds.
	ErrUnknownKind = errors.New("unknown report kind")
)

// ReportKind selects the length and depth of the narrative.
type ReportKind string

const (
	ReportKindShort    ReportKind = "short"
	ReportKindDetailed ReportKind = "detailed"
)

// ParseReportKind validates a textual kind.
func ParseReportKind(value string) (ReportKind, error) {
	switch ReportKind(value) {
	case ReportKindShort, ReportKindDetailed:
		return ReportKind(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
}

// ReportStatus is the lifecycle state of a report. The zero value is not a valid status.
type ReportStatus uint8

const (
	ReportStatusPending ReportStatus = iota + 1
	ReportStatusGenerated
	ReportStatusFailed
)

func (s ReportStatus) String() string {
	switch s {
	case ReportStatusPending:
		return "pending"
	case ReportStatusGenerated:
		return "generated"
	case ReportStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseReportStatus converts a stored status value.
func ParseReportStatus(value string) (ReportStatus, error) {
	switch value {
	case "pending":
		return ReportStatusPending, nil
	case "generated":
		return ReportStatusGenerated, nil
	case "failed":
		return ReportStatusFailed, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
}

// FailureKind classifies why a run ended in failed.
type FailureKind string

const (
	FailureInsufficientData FailureKind = "insufficient_data"
	FailureBackend          FailureKind = "backend"
	FailureTimeout          FailureKind = "timeout"
	FailureInternal         FailureKind = "internal"
)

// Retryable reports whether a new run against the same window may succeed.
func (k FailureKind) Retryable() bool {
	return k == FailureBackend || k == FailureTimeout
}

// Failure is attached to failed reports only.
type Failure struct {
	Kind    FailureKind
	Message string
}

// InsufficientDataMessage is the generation_error stored when neither domain has data.
const InsufficientDataMessage = "insufficient data"

// Sections holds the narrative fields parsed from the generated reply.
type Sections struct {
	ProgressSummary          string
	WorkoutOverview          string
	WorkoutStrengths         string
	WorkoutImprovements      string
	WorkoutRecommendations   string
	NutritionOverview        string
	NutritionStrengths       string
	NutritionImprovements    string
	NutritionRecommendations string
	KeyTakeaways             string
}

// ProgressReport is the persisted output of one orchestration run.
type ProgressReport struct {
	ID        string
	UserID    string
	Period    ReportingWindow
	Kind      ReportKind
	Status    ReportStatus
	Sections  Sections
	Failure   *Failure
	IsRead    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPendingReport builds a report in the pending state.
func NewPendingReport(id, userID string, period ReportingWindow, kind ReportKind, now time.Time) *ProgressReport {
	return &ProgressReport{
		ID:        id,
		UserID:    userID,
		Period:    period,
		Kind:      kind,
		Status:    ReportStatusPending,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// MarkGenerated settles a pending report with its narrative sections.
func (r *ProgressReport) MarkGenerated(sections Sections, now time.Time) error {
	if r.Status != ReportStatusPending {
		return fmt.Errorf("%w: %s -> generated", ErrInvalidTransition, r.Status)
	}
	r.Sections = sections
	r.Status = ReportStatusGenerated
	r.Failure = nil
	r.UpdatedAt = now.UTC()
	return nil
}

// MarkFailed settles a pending report as failed.
func (r *ProgressReport) MarkFailed(failure Failure, now time.Time) error {
	if r.Status != ReportStatusPending {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, r.Status)
	}
	f := failure
	r.Status = ReportStatusFailed
	r.Failure = &f
	r.UpdatedAt = now.UTC()
	return nil
}

// GenerationError returns the failure message, or "" when the report has not failed.
func (r *ProgressReport) GenerationError() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Message
}

// MatchStatus folds over the report status. Every branch must be supplied, so adding a
// status forces every caller to handle it.
func MatchStatus[T any](r *ProgressReport, pending func() T, generated func(Sections) T, failed func(Failure) T) T {
	switch r.Status {
	case ReportStatusPending:
		return pending()
	case ReportStatusGenerated:
		return generated(r.Sections)
	case ReportStatusFailed:
		f := Failure{Kind: FailureInternal}
		if r.Failure != nil {
			f = *r.Failure
		}
		return failed(f)
	default:
		panic(fmt.Sprintf("report %s has invalid status %d", r.ID, r.Status))
	}
}

// Cursor models the report listing pagination token.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
