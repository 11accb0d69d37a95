// Package aggregator builds per-user activity summaries over a reporting window.
package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"example.com/progressreports/internal/domain"
)

const (
	noNutritionMessage = "No nutrition entries were logged in this period."
	noWorkoutMessage   = "No completed workouts were logged in this period."
)

// ActivitySource exposes the read-only activity records owned by other services.
type ActivitySource interface {
	// DailyTotals returns totals for dates in [from, to], both inclusive, as midnight UTC dates.
	DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]domain.DailyNutritionTotal, error)
	// Goals returns nil when the user has no goals recorded.
	Goals(ctx context.Context, userID string) (*domain.NutritionGoals, error)
	CompletedWorkouts(ctx context.Context, userID string, window domain.ReportingWindow) ([]domain.CompletedWorkout, error)
	// Profile returns nil when the user has no profile.
	Profile(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// Aggregator collects nutrition and workout activity for a user.
type Aggregator struct {
	source ActivitySource
	loc    *time.Location
	logger *zap.Logger
}

// Option customises Aggregator behaviour.
type Option func(*Aggregator)

// WithLogger sets the logger used for lookup failures.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLocation sets the timezone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// New constructs an Aggregator over source.
func New(source ActivitySource, opts ...Option) *Aggregator {
	a := &Aggregator{source: source, loc: time.UTC, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Collect summarises the user's activity in window. Lookup failures are reported on the
// affected sub-summary only; Collect itself never fails.
func (a *Aggregator) Collect(ctx context.Context, userID string, window domain.ReportingWindow) domain.ActivitySummary {
	summary := domain.ActivitySummary{UserID: userID, Window: window}

	nutrition, err := guard(func() (domain.NutritionSummary, error) { return a.nutrition(ctx, userID, window) })
	if err != nil {
		a.logger.Warn("nutrition aggregation failed", zap.String("user_id", userID), zap.Error(err))
		recordLookupError(domain.DomainNutrition)
		nutrition = domain.NutritionSummary{HasData: false, Error: err.Error()}
	}
	summary.Nutrition = nutrition

	workout, err := guard(func() (domain.WorkoutSummary, error) { return a.workout(ctx, userID, window) })
	if err != nil {
		a.logger.Warn("workout aggregation failed", zap.String("user_id", userID), zap.Error(err))
		recordLookupError(domain.DomainWorkout)
		workout = domain.WorkoutSummary{HasData: false, Error: err.Error()}
	}
	summary.Workout = workout

	profile, err := a.source.Profile(ctx, userID)
	if err != nil {
		a.logger.Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
	} else if profile != nil {
		summary.Profile = domain.ProfileSnapshot{
			Goal:            profile.Goal,
			ActivityLevel:   profile.ActivityLevel,
			StartWeightKg:   profile.StartWeightKg,
			CurrentWeightKg: profile.CurrentWeightKg,
			TargetWeightKg:  profile.TargetWeightKg,
		}
	}

	return summary
}

func (a *Aggregator) nutrition(ctx context.Context, userID string, window domain.ReportingWindow) (domain.NutritionSummary, error) {
	from, to := window.DateRange(a.loc)
	totals, err := a.source.DailyTotals(ctx, userID, from, to)
	if err != nil {
		return domain.NutritionSummary{}, fmt.Errorf("load daily totals: %w", err)
	}

	days := make([]domain.DailyNutritionTotal, 0, len(totals))
	for _, t := range totals {
		if t.EntryCount <= 0 || !window.OverlapsDay(t.Date, a.loc) {
			continue
		}
		days = append(days, t)
	}
	if len(days) == 0 {
		return domain.NutritionSummary{HasData: false, Message: noNutritionMessage}, nil
	}

	goals, err := a.source.Goals(ctx, userID)
	if err != nil {
		return domain.NutritionSummary{}, fmt.Errorf("load nutrition goals: %w", err)
	}
	if goals == nil {
		goals = &domain.NutritionGoals{UserID: userID}
	}

	var kcal, protein, carbs, fat float64
	for _, d := range days {
		kcal += d.Calories
		protein += d.ProteinG
		carbs += d.CarbsG
		fat += d.FatG
	}
	n := float64(len(days))

	// A window with non-midnight bounds touches one calendar day more than its length.
	tracked := min(len(days), window.Days())
	out := domain.NutritionSummary{
		HasData:     true,
		TrackedDays: tracked,
		Calories:    MacroStatFor(kcal/n, goals.Calories),
		Protein:     MacroStatFor(protein/n, goals.ProteinG),
		Carbs:       MacroStatFor(carbs/n, goals.CarbsG),
		Fat:         MacroStatFor(fat/n, goals.FatG),
	}
	out.OverallAdherence = (out.Calories.Adherence + out.Protein.Adherence + out.Carbs.Adherence + out.Fat.Adherence) / 4
	out.Distribution = distribution(out.Calories.Average, out.Protein.Average, out.Carbs.Average, out.Fat.Average)
	return out, nil
}

func (a *Aggregator) workout(ctx context.Context, userID string, window domain.ReportingWindow) (domain.WorkoutSummary, error) {
	workouts, err := a.source.CompletedWorkouts(ctx, userID, window)
	if err != nil {
		return domain.WorkoutSummary{}, fmt.Errorf("load completed workouts: %w", err)
	}

	out := domain.WorkoutSummary{ExerciseVolume: map[string]float64{}}
	for _, w := range workouts {
		if !window.Contains(w.CompletedAt) {
			continue
		}
		out.TotalSessions++
		out.TotalMinutes += w.DurationMinutes()
		for _, ex := range w.Exercises {
			volume := out.ExerciseVolume[ex.Name]
			for _, set := range ex.Sets {
				volume += float64(set.Reps) * set.WeightKg
				out.TotalSets++
			}
			out.ExerciseVolume[ex.Name] = volume
		}
	}
	if out.TotalSessions == 0 {
		return domain.WorkoutSummary{HasData: false, Message: noWorkoutMessage}, nil
	}

	sessions := float64(out.TotalSessions)
	out.HasData = true
	out.SessionsPerWeek = sessions / math.Max(float64(window.Days())/7, 1)
	out.AverageSessionMinutes = out.TotalMinutes / sessions
	out.AverageSetsPerSession = float64(out.TotalSets) / sessions
	out.ExerciseVariety = len(out.ExerciseVolume)
	return out, nil
}

// MacroStatFor computes the ratio and capped adherence of average against goal.
// A goal of zero or below yields zero for both.
func MacroStatFor(average, goal float64) domain.MacroStat {
	stat := domain.MacroStat{Average: average, Goal: goal}
	if goal <= 0 {
		return stat
	}
	stat.Ratio = 100 * average / goal
	stat.Adherence = math.Max(0, math.Min(100, stat.Ratio))
	return stat
}

func distribution(kcal, protein, carbs, fat float64) domain.MacroDistribution {
	if kcal <= 0 {
		return domain.MacroDistribution{}
	}
	return domain.MacroDistribution{
		ProteinPct: 100 * protein * 4 / kcal,
		CarbsPct:   100 * carbs * 4 / kcal,
		FatPct:     100 * fat * 9 / kcal,
	}
}

// SortedExercises returns exercise names ordered by descending volume, then name.
func SortedExercises(volume map[string]float64) []string {
	names := make([]string, 0, len(volume))
	for name := range volume {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if volume[names[i]] != volume[names[j]] {
			return volume[names[i]] > volume[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
