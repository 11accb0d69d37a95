package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/foodlookup"
)

// ReportView is the JSON shape of one progress report.
type ReportView struct {
	ReportID        string        `json:"report_id"`
	PeriodStart     time.Time     `json:"period_start"`
	PeriodEnd       time.Time     `json:"period_end"`
	Kind            string        `json:"kind"`
	Status          string        `json:"status"`
	IsRead          bool          `json:"is_read"`
	Sections        *SectionsView `json:"sections,omitempty"`
	FailureKind     string        `json:"failure_kind,omitempty"`
	GenerationError string        `json:"generation_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SectionsView carries the narrative of a generated report.
type SectionsView struct {
	ProgressSummary          string `json:"progress_summary"`
	WorkoutOverview          string `json:"workout_overview"`
	WorkoutStrengths         string `json:"workout_strengths"`
	WorkoutImprovements      string `json:"workout_improvements"`
	WorkoutRecommendations   string `json:"workout_recommendations"`
	NutritionOverview        string `json:"nutrition_overview"`
	NutritionStrengths       string `json:"nutrition_strengths"`
	NutritionImprovements    string `json:"nutrition_improvements"`
	NutritionRecommendations string `json:"nutrition_recommendations"`
	KeyTakeaways             string `json:"key_takeaways"`
}

// ListReportsResponse packages list results.
type ListReportsResponse struct {
	Items      []ReportView `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// MarkReadRequest is the optional body of PUT /v1/reports/{id}/read.
type MarkReadRequest struct {
	IsRead bool `json:"is_read"`
}

// RequestReportRequest is the payload for POST /v1/reports. Both window bounds
// must be given together; when omitted the window ends now.
type RequestReportRequest struct {
	Kind        string `json:"kind"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
}

func (r RequestReportRequest) toInput(userID string, service *domain.Service) (domain.RequestReportInput, error) {
	input := domain.RequestReportInput{UserID: userID, Kind: domain.ReportKindShort}
	if r.Kind != "" {
		kind, err := domain.ParseReportKind(r.Kind)
		if err != nil {
			return input, err
		}
		input.Kind = kind
	}

	start, end := strings.TrimSpace(r.WindowStart), strings.TrimSpace(r.WindowEnd)
	if start == "" && end == "" {
		return input, nil
	}
	if start == "" || end == "" {
		return input, errors.New("window_start and window_end must be provided together")
	}
	from, err := domain.ParseWindowBound(start, service.Location())
	if err != nil {
		return input, fmt.Errorf("window_start: %w", err)
	}
	to, err := domain.ParseWindowBound(end, service.Location())
	if err != nil {
		return input, fmt.Errorf("window_end: %w", err)
	}
	window, err := domain.NewReportingWindow(from, to)
	if err != nil {
		return input, err
	}
	input.Window = &window
	return input, nil
}

// RequestReportResponse acknowledges an enqueued on-demand report.
type RequestReportResponse struct {
	JobID       string     `json:"job_id"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Kind        string     `json:"kind"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// UpdateSettingsRequest is the payload for PUT /v1/report-settings.
type UpdateSettingsRequest struct {
	IntervalDays int    `json:"interval_days"`
	Kind         string `json:"kind,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// Validate ensures request correctness. Out-of-range intervals are rejected, never clamped.
func (r UpdateSettingsRequest) Validate() error {
	if r.IntervalDays < domain.MinIntervalDays || r.IntervalDays > domain.MaxIntervalDays {
		return fmt.Errorf("%w (got %d)", domain.ErrIntervalOutOfRange, r.IntervalDays)
	}
	if r.Kind != "" {
		if _, err := domain.ParseReportKind(r.Kind); err != nil {
			return err
		}
	}
	return nil
}

// SettingsView exposes a user's cadence settings.
type SettingsView struct {
	IntervalDays    int        `json:"interval_days"`
	Kind            string     `json:"kind"`
	Enabled         bool       `json:"enabled"`
	LastGeneratedAt *time.Time `json:"last_generated_at,omitempty"`
	NextDueDate     string     `json:"next_due_date,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FoodSearchResponse wraps food lookup hits.
type FoodSearchResponse struct {
	Items []foodlookup.Food `json:"items"`
}

func toReportView(report *domain.ProgressReport) ReportView {
	view := ReportView{
		ReportID:    report.ID,
		PeriodStart: report.Period.Start,
		PeriodEnd:   report.Period.End,
		Kind:        string(report.Kind),
		Status:      report.Status.String(),
		IsRead:      report.IsRead,
		CreatedAt:   report.CreatedAt,
		UpdatedAt:   report.UpdatedAt,
	}
	return domain.MatchStatus(report,
		func() ReportView { return view },
		func(s domain.Sections) ReportView {
			view.Sections = &SectionsView{
				ProgressSummary:          s.ProgressSummary,
				WorkoutOverview:          s.WorkoutOverview,
				WorkoutStrengths:         s.WorkoutStrengths,
				WorkoutImprovements:      s.WorkoutImprovements,
				WorkoutRecommendations:   s.WorkoutRecommendations,
				NutritionOverview:        s.NutritionOverview,
				NutritionStrengths:       s.NutritionStrengths,
				NutritionImprovements:    s.NutritionImprovements,
				NutritionRecommendations: s.NutritionRecommendations,
				KeyTakeaways:             s.KeyTakeaways,
			}
			return view
		},
		func(f domain.Failure) ReportView {
			view.FailureKind = string(f.Kind)
			view.GenerationError = f.Message
			return view
		},
	)
}

func toSettingsView(s domain.CadenceSettings) SettingsView {
	view := SettingsView{
		IntervalDays:    s.IntervalDays,
		Kind:            string(s.Kind),
		Enabled:         s.Enabled,
		LastGeneratedAt: s.LastGeneratedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.NextDueDate != nil {
		view.NextDueDate = s.NextDueDate.Format(time.DateOnly)
	}
	return view
}
