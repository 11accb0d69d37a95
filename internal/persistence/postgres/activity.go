package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progressreports/internal/domain"
)

// ActivityRepository reads the nutrition, workout and profile tables and owns nutrition_goals writes.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// DailyTotals returns the per-day rollups for dates in [from, to].
func (r *ActivityRepository) DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]domain.DailyNutritionTotal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, day, calories, protein_g, carbs_g, fat_g, entry_count
        FROM nutrition_daily_totals
        WHERE user_id=$1 AND day BETWEEN $2 AND $3
        ORDER BY day`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily totals: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DailyNutritionTotal, error) {
		var t domain.DailyNutritionTotal
		err := row.Scan(&t.UserID, &t.Date, &t.Calories, &t.ProteinG, &t.CarbsG, &t.FatG, &t.EntryCount)
		return t, err
	})
}

// Goals returns nil, nil when no goals are recorded.
func (r *ActivityRepository) Goals(ctx context.Context, userID string) (*domain.NutritionGoals, error) {
	var g domain.NutritionGoals
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, calories, protein_g, carbs_g, fat_g, updated_at FROM nutrition_goals WHERE user_id=$1`, userID,
	).Scan(&g.UserID, &g.Calories, &g.ProteinG, &g.CarbsG, &g.FatG, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	return &g, nil
}

// UpsertGoals replaces the user's nutrition goals.
func (r *ActivityRepository) UpsertGoals(ctx context.Context, goals domain.NutritionGoals) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO nutrition_goals (user_id, calories, protein_g, carbs_g, fat_g, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO UPDATE SET
            calories = EXCLUDED.calories,
            protein_g = EXCLUDED.protein_g,
            carbs_g = EXCLUDED.carbs_g,
            fat_g = EXCLUDED.fat_g,
            updated_at = EXCLUDED.updated_at`,
		goals.UserID, goals.Calories, goals.ProteinG, goals.CarbsG, goals.FatG, goals.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert goals %s: %w", goals.UserID, err)
	}
	return nil
}

// CompletedWorkouts returns workouts completed inside the window with their sets, ordered by completion.
func (r *ActivityRepository) CompletedWorkouts(ctx context.Context, userID string, window domain.ReportingWindow) ([]domain.CompletedWorkout, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT workout_id, user_id, started_at, completed_at
        FROM completed_workouts
        WHERE user_id=$1 AND completed_at >= $2 AND completed_at < $3
        ORDER BY completed_at`,
		userID, window.Start, window.End,
	)
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	workouts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CompletedWorkout, error) {
		var (
			w       domain.CompletedWorkout
			started *time.Time
		)
		if err := row.Scan(&w.ID, &w.UserID, &started, &w.CompletedAt); err != nil {
			return w, err
		}
		if started != nil {
			w.StartedAt = started.UTC()
		}
		w.CompletedAt = w.CompletedAt.UTC()
		return w, nil
	})
	if err != nil || len(workouts) == 0 {
		return workouts, err
	}

	ids := make([]string, len(workouts))
	index := make(map[string]int, len(workouts))
	for i, w := range workouts {
		ids[i] = w.ID
		index[w.ID] = i
	}

	setRows, err := r.pool.Query(ctx,
		`SELECT workout_id, exercise_name, reps, weight_kg
        FROM workout_sets
        WHERE workout_id = ANY($1)
        ORDER BY workout_id, exercise_name, set_index`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query workout sets: %w", err)
	}
	defer setRows.Close()

	for setRows.Next() {
		var (
			workoutID, exercise string
			set                 domain.PerformedSet
		)
		if err := setRows.Scan(&workoutID, &exercise, &set.Reps, &set.WeightKg); err != nil {
			return nil, err
		}
		w := &workouts[index[workoutID]]
		if n := len(w.Exercises); n > 0 && w.Exercises[n-1].Name == exercise {
			w.Exercises[n-1].Sets = append(w.Exercises[n-1].Sets, set)
			continue
		}
		w.Exercises = append(w.Exercises, domain.PerformedExercise{Name: exercise, Sets: []domain.PerformedSet{set}})
	}
	if err := setRows.Err(); err != nil {
		return nil, err
	}
	return workouts, nil
}

// Profile returns nil, nil when the user has no profile.
func (r *ActivityRepository) Profile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, sex, birth_date, height_cm, start_weight_kg, current_weight_kg, target_weight_kg, activity_level, goal, updated_at
        FROM user_profiles WHERE user_id=$1`, userID,
	).Scan(&p.UserID, &p.Sex, &p.BirthDate, &p.HeightCm, &p.StartWeightKg, &p.CurrentWeightKg, &p.TargetWeightKg, &p.ActivityLevel, &p.Goal, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}
