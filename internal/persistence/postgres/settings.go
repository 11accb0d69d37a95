package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progressreports/internal/domain"
)

const settingsColumns = `user_id, interval_days, kind, enabled, last_generated_at, next_due_date, created_at, updated_at`

// SettingsRepository persists report cadence settings.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns nil, nil when the user has no settings.
func (r *SettingsRepository) Get(ctx context.Context, userID string) (*domain.CadenceSettings, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingsColumns+` FROM report_settings WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	settings, err := pgx.CollectOneRow(rows, scanSettings)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert inserts or replaces the user's settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, settings domain.CadenceSettings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO report_settings (`+settingsColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (user_id) DO UPDATE SET
            interval_days = EXCLUDED.interval_days,
            kind = EXCLUDED.kind,
            enabled = EXCLUDED.enabled,
            last_generated_at = EXCLUDED.last_generated_at,
            next_due_date = EXCLUDED.next_due_date,
            updated_at = EXCLUDED.updated_at`,
		settings.UserID, settings.IntervalDays, string(settings.Kind), settings.Enabled,
		settings.LastGeneratedAt, settings.NextDueDate, settings.CreatedAt, settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert settings %s: %w", settings.UserID, err)
	}
	return nil
}

// ListEnabled returns every enabled settings row ordered by user.
func (r *SettingsRepository) ListEnabled(ctx context.Context) ([]domain.CadenceSettings, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingsColumns+` FROM report_settings WHERE enabled ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSettings)
}

func scanSettings(row pgx.CollectableRow) (domain.CadenceSettings, error) {
	var (
		settings domain.CadenceSettings
		kind     string
	)
	if err := row.Scan(&settings.UserID, &settings.IntervalDays, &kind, &settings.Enabled,
		&settings.LastGeneratedAt, &settings.NextDueDate, &settings.CreatedAt, &settings.UpdatedAt); err != nil {
		return domain.CadenceSettings{}, err
	}
	var err error
	if settings.Kind, err = domain.ParseReportKind(kind); err != nil {
		return domain.CadenceSettings{}, err
	}
	if settings.LastGeneratedAt != nil {
		t := settings.LastGeneratedAt.UTC()
		settings.LastGeneratedAt = &t
	}
	settings.CreatedAt = settings.CreatedAt.UTC()
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return settings, nil
}
