// Package postgres implements the repositories on top of pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progressreports/internal/domain"
)

const reportColumns = `report_id, user_id, period_start, period_end, kind, status, failure_kind, generation_error,
        progress_summary, workout_overview, workout_strengths, workout_improvements, workout_recommendations,
        nutrition_overview, nutrition_strengths, nutrition_improvements, nutrition_recommendations, key_takeaways,
        is_read, created_at, updated_at`

// ReportRepository persists progress reports.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Create inserts a new report row.
func (r *ReportRepository) Create(ctx context.Context, report *domain.ProgressReport) error {
	failureKind, generationError := failureColumns(report.Failure)
	s := report.Sections
	_, err := r.pool.Exec(ctx,
		`INSERT INTO progress_reports (`+reportColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		report.ID, report.UserID, report.Period.Start, report.Period.End, string(report.Kind), report.Status.String(),
		failureKind, generationError,
		s.ProgressSummary, s.WorkoutOverview, s.WorkoutStrengths, s.WorkoutImprovements, s.WorkoutRecommendations,
		s.NutritionOverview, s.NutritionStrengths, s.NutritionImprovements, s.NutritionRecommendations, s.KeyTakeaways,
		report.IsRead, report.CreatedAt, report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", report.ID, err)
	}
	return nil
}

// Save writes the status, failure and sections of an existing report. is_read is left untouched.
func (r *ReportRepository) Save(ctx context.Context, report *domain.ProgressReport) error {
	failureKind, generationError := failureColumns(report.Failure)
	s := report.Sections
	tag, err := r.pool.Exec(ctx,
		`UPDATE progress_reports SET status=$2, failure_kind=$3, generation_error=$4,
            progress_summary=$5, workout_overview=$6, workout_strengths=$7, workout_improvements=$8, workout_recommendations=$9,
            nutrition_overview=$10, nutrition_strengths=$11, nutrition_improvements=$12, nutrition_recommendations=$13,
            key_takeaways=$14, updated_at=$15
        WHERE report_id=$1`,
		report.ID, report.Status.String(), failureKind, generationError,
		s.ProgressSummary, s.WorkoutOverview, s.WorkoutStrengths, s.WorkoutImprovements, s.WorkoutRecommendations,
		s.NutritionOverview, s.NutritionStrengths, s.NutritionImprovements, s.NutritionRecommendations,
		s.KeyTakeaways, report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update report %s: %w", report.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

// Get returns nil, nil when the report does not exist or belongs to another user.
func (r *ReportRepository) Get(ctx context.Context, userID, reportID string) (*domain.ProgressReport, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reportColumns+` FROM progress_reports WHERE user_id=$1 AND report_id=$2`, userID, reportID)
	if err != nil {
		return nil, err
	}
	report, err := pgx.CollectOneRow(rows, scanReport)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByUser returns a page of the user's reports, newest first. A limit of zero or less returns all.
func (r *ReportRepository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ProgressReport, *domain.Cursor, error) {
	args := []any{userID}
	query := `SELECT ` + reportColumns + ` FROM progress_reports WHERE user_id=$1`
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		query += ` AND (created_at, report_id) < ($2, $3)`
	}
	query += ` ORDER BY created_at DESC, report_id DESC`
	if limit > 0 {
		args = append(args, limit+1)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	reports, err := pgx.CollectRows(rows, scanReport)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
		last := reports[len(reports)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return reports, next, nil
}

// SetRead flips is_read. It reports false when no report matched.
func (r *ReportRepository) SetRead(ctx context.Context, userID, reportID string, read bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE progress_reports SET is_read=$3 WHERE user_id=$1 AND report_id=$2`, userID, reportID, read)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete hard-deletes a report. It reports false when no report matched.
func (r *ReportRepository) Delete(ctx context.Context, userID, reportID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM progress_reports WHERE user_id=$1 AND report_id=$2`, userID, reportID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListUsersWithReports returns every user owning at least one report.
func (r *ReportRepository) ListUsersWithReports(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM progress_reports ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// PruneUser deletes all but the keep most recently created reports of the user.
func (r *ReportRepository) PruneUser(ctx context.Context, userID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM progress_reports WHERE user_id=$1 AND report_id IN (
            SELECT report_id FROM progress_reports WHERE user_id=$1
            ORDER BY created_at DESC, report_id DESC
            OFFSET $2)`,
		userID, keep,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanReport(row pgx.CollectableRow) (domain.ProgressReport, error) {
	var (
		report          domain.ProgressReport
		kind, status    string
		failureKind     *string
		generationError *string
	)
	s := &report.Sections
	if err := row.Scan(
		&report.ID, &report.UserID, &report.Period.Start, &report.Period.End, &kind, &status, &failureKind, &generationError,
		&s.ProgressSummary, &s.WorkoutOverview, &s.WorkoutStrengths, &s.WorkoutImprovements, &s.WorkoutRecommendations,
		&s.NutritionOverview, &s.NutritionStrengths, &s.NutritionImprovements, &s.NutritionRecommendations, &s.KeyTakeaways,
		&report.IsRead, &report.CreatedAt, &report.UpdatedAt,
	); err != nil {
		return domain.ProgressReport{}, err
	}

	var err error
	if report.Kind, err = domain.ParseReportKind(kind); err != nil {
		return domain.ProgressReport{}, err
	}
	if report.Status, err = domain.ParseReportStatus(status); err != nil {
		return domain.ProgressReport{}, err
	}
	if failureKind != nil {
		report.Failure = &domain.Failure{Kind: domain.FailureKind(*failureKind)}
		if generationError != nil {
			report.Failure.Message = *generationError
		}
	}
	report.Period.Start = report.Period.Start.UTC()
	report.Period.End = report.Period.End.UTC()
	report.CreatedAt = report.CreatedAt.UTC()
	report.UpdatedAt = report.UpdatedAt.UTC()
	return report, nil
}

func failureColumns(f *domain.Failure) (any, any) {
	if f == nil {
		return nil, nil
	}
	return string(f.Kind), f.Message
}
