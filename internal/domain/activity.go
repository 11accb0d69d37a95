package domain

import "time"

// DailyNutritionTotal is the per-day macro rollup written by the nutrition service.
type DailyNutritionTotal struct {
	UserID     string
	Date       time.Time
	Calories   float64
	ProteinG   float64
	CarbsG     float64
	FatG       float64
	EntryCount int
}

// NutritionGoals are the per-user daily macro targets.
type NutritionGoals struct {
	UserID    string
	Calories  float64
	ProteinG  float64
	CarbsG    float64
	FatG      float64
	UpdatedAt time.Time
}

// PerformedSet is a single logged set of an exercise.
type PerformedSet struct {
	Reps     int
	WeightKg float64
}

// PerformedExercise groups the sets performed for one exercise in a workout.
type PerformedExercise struct {
	Name string
	Sets []PerformedSet
}

// CompletedWorkout is a finished workout session written by the workout service.
type CompletedWorkout struct {
	ID          string
	UserID      string
	StartedAt   time.Time
	CompletedAt time.Time
	Exercises   []PerformedExercise
}

// DurationMinutes is the elapsed session time.
func (w CompletedWorkout) DurationMinutes() float64 {
	if w.StartedAt.IsZero() || !w.CompletedAt.After(w.StartedAt) {
		return 0
	}
	return w.CompletedAt.Sub(w.StartedAt).Minutes()
}

// UserProfile carries the fields of the account profile that reports and goals depend on.
type UserProfile struct {
	UserID          string
	Sex             string
	BirthDate       *time.Time
	HeightCm        float64
	StartWeightKg   float64
	CurrentWeightKg float64
	TargetWeightKg  float64
	ActivityLevel   string
	Goal            string
	UpdatedAt       time.Time
}
