// Package insights turns activity summaries into banded insights and recommendations.
// Analyze is pure: it reads no clock and holds no state.
package insights

import (
	"fmt"
	"sort"

	"example.com/progressreports/internal/domain"
)

// Recommendation categories.
const (
	CategoryStartTrackingNutrition = "start_tracking_nutrition"
	CategoryStartTraining          = "start_training"
	CategoryFuelTraining           = "fuel_training"
	CategoryProteinForRecovery     = "protein_for_recovery"
	CategoryEnergyBalance          = "energy_balance"
	CategoryEnduranceFuel          = "endurance_fuel"
	CategoryMaintainMomentum       = "maintain_momentum"
)

// Analyze evaluates summary against the fixed thresholds. windowDays is the reporting
// window length used for tracking consistency; values below 1 are treated as 1.
func Analyze(summary domain.ActivitySummary, windowDays int) domain.InsightSet {
	if windowDays < 1 {
		windowDays = 1
	}

	set := domain.InsightSet{
		Insights:        []domain.Insight{},
		Recommendations: []domain.Recommendation{},
	}

	if summary.Nutrition.HasData {
		set.Insights = append(set.Insights, nutritionInsights(summary.Nutrition, windowDays)...)
	} else {
		set.Recommendations = append(set.Recommendations, domain.Recommendation{
			Priority: domain.PriorityHigh,
			Category: CategoryStartTrackingNutrition,
			Message:  "Start logging your meals so your progress reports can include nutrition feedback.",
		})
	}

	if summary.Workout.HasData {
		set.Insights = append(set.Insights, workoutInsights(summary.Workout)...)
	} else {
		set.Recommendations = append(set.Recommendations, domain.Recommendation{
			Priority: domain.PriorityHigh,
			Category: CategoryStartTraining,
			Message:  "Complete and log at least two workouts a week to start building a training baseline.",
		})
	}

	if summary.Nutrition.HasData && summary.Workout.HasData {
		set.Recommendations = append(set.Recommendations, crossDomain(summary.Nutrition, summary.Workout)...)
	}

	sort.SliceStable(set.Recommendations, func(i, j int) bool {
		return set.Recommendations[i].Priority.Rank() < set.Recommendations[j].Priority.Rank()
	})
	return set
}

func nutritionInsights(n domain.NutritionSummary, windowDays int) []domain.Insight {
	out := []domain.Insight{overallAdherence(n.OverallAdherence)}
	add := func(sev domain.Severity, category, format string, args ...any) {
		out = append(out, domain.Insight{Domain: domain.DomainNutrition, Severity: sev, Category: category, Message: fmt.Sprintf(format, args...)})
	}

	if n.Protein.Goal > 0 {
		switch {
		case n.Protein.Adherence < 80:
			add(domain.SeverityWarning, "protein_deficit",
				"Protein intake averaged %.0f g, %.0f%% of your %.0f g goal. Add a protein source to each meal.", n.Protein.Average, n.Protein.Adherence, n.Protein.Goal)
		case n.Protein.Adherence >= 95:
			add(domain.SeveritySuccess, "protein_target",
				"Protein intake is on target at %.0f%% of your goal.", n.Protein.Adherence)
		}
	}

	if n.Calories.Goal > 0 {
		switch {
		case n.Calories.Ratio < 85:
			add(domain.SeverityWarning, "under_eating",
				"Calories averaged %.0f kcal, only %.0f%% of your %.0f kcal goal.", n.Calories.Average, n.Calories.Ratio, n.Calories.Goal)
		case n.Calories.Ratio > 110:
			add(domain.SeverityWarning, "over_eating",
				"Calories averaged %.0f kcal, %.0f%% of your %.0f kcal goal.", n.Calories.Average, n.Calories.Ratio, n.Calories.Goal)
		}
	}

	if n.Calories.Average > 0 {
		if n.Distribution.ProteinPct < 15 {
			add(domain.SeverityWarning, "low_protein_ratio",
				"Only %.0f%% of your calories come from protein; aim for at least 15%%.", n.Distribution.ProteinPct)
		}
		switch {
		case n.Distribution.FatPct < 20:
			add(domain.SeverityWarning, "low_fat_ratio",
				"Fat supplies %.0f%% of your calories; below 20%% can affect hormone health.", n.Distribution.FatPct)
		case n.Distribution.FatPct > 40:
			add(domain.SeverityCaution, "high_fat_ratio",
				"Fat supplies %.0f%% of your calories, above the 40%% guideline.", n.Distribution.FatPct)
		}
	}

	consistency := min(100, 100*float64(n.TrackedDays)/float64(windowDays))
	switch {
	case consistency < 70:
		add(domain.SeverityImprovement, "tracking_consistency",
			"You logged meals on %d of %d days. More consistent tracking gives more accurate feedback.", n.TrackedDays, windowDays)
	case consistency >= 90:
		add(domain.SeveritySuccess, "tracking_consistency",
			"Great tracking consistency: meals logged on %d of %d days.", n.TrackedDays, windowDays)
	}

	if n.Carbs.Goal > 0 && n.Carbs.Adherence < 70 {
		add(domain.SeverityInfo, "low_carbs",
			"Carbohydrates averaged %.0f%% of your goal.", n.Carbs.Adherence)
	}

	return out
}

func overallAdherence(adherence float64) domain.Insight {
	in := domain.Insight{Domain: domain.DomainNutrition, Category: "overall_adherence"}
	switch {
	case adherence >= 90:
		in.Severity = domain.SeverityExcellent
		in.Message = fmt.Sprintf("Excellent nutrition adherence at %.0f%% of your goals.", adherence)
	case adherence >= 75:
		in.Severity = domain.SeverityGood
		in.Message = fmt.Sprintf("Good nutrition adherence at %.0f%% of your goals.", adherence)
	case adherence >= 50:
		in.Severity = domain.SeverityModerate
		in.Message = fmt.Sprintf("Moderate nutrition adherence at %.0f%%; there is room to tighten things up.", adherence)
	default:
		in.Severity = domain.SeverityNeedsImprovement
		in.Message = fmt.Sprintf("Nutrition adherence is %.0f%%; focus on hitting your daily targets.", adherence)
	}
	return in
}

func workoutInsights(w domain.WorkoutSummary) []domain.Insight {
	out := []domain.Insight{workoutFrequency(w.SessionsPerWeek)}
	add := func(sev domain.Severity, category, format string, args ...any) {
		out = append(out, domain.Insight{Domain: domain.DomainWorkout, Severity: sev, Category: category, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case w.AverageSessionMinutes < 30:
		add(domain.SeverityWarning, "session_length",
			"Sessions averaged %.0f minutes; under 30 minutes limits training stimulus.", w.AverageSessionMinutes)
	case w.AverageSessionMinutes > 90:
		add(domain.SeverityCaution, "session_length",
			"Sessions averaged %.0f minutes; very long sessions can hurt recovery.", w.AverageSessionMinutes)
	default:
		add(domain.SeveritySuccess, "session_length",
			"Sessions averaged a solid %.0f minutes.", w.AverageSessionMinutes)
	}

	switch {
	case w.ExerciseVariety < 5:
		add(domain.SeverityImprovement, "exercise_variety",
			"You trained %d distinct exercises. Adding variety helps balanced development.", w.ExerciseVariety)
	case w.ExerciseVariety >= 10:
		add(domain.SeveritySuccess, "exercise_variety",
			"Great variety with %d distinct exercises.", w.ExerciseVariety)
	default:
		add(domain.SeverityGood, "exercise_variety",
			"Good variety with %d distinct exercises.", w.ExerciseVariety)
	}

	switch {
	case w.AverageSetsPerSession < 10:
		add(domain.SeverityWarning, "training_volume",
			"Sessions averaged %.1f sets; consider adding volume.", w.AverageSetsPerSession)
	case w.AverageSetsPerSession > 30:
		add(domain.SeverityCaution, "training_volume",
			"Sessions averaged %.1f sets; watch for accumulated fatigue.", w.AverageSetsPerSession)
	}

	return out
}

func workoutFrequency(perWeek float64) domain.Insight {
	in := domain.Insight{Domain: domain.DomainWorkout, Category: "workout_frequency"}
	switch {
	case perWeek >= 5:
		in.Severity = domain.SeverityExcellent
		in.Message = fmt.Sprintf("Excellent training frequency at %.1f sessions per week.", perWeek)
	case perWeek >= 3:
		in.Severity = domain.SeverityGood
		in.Message = fmt.Sprintf("Good training frequency at %.1f sessions per week.", perWeek)
	case perWeek >= 2:
		in.Severity = domain.SeverityModerate
		in.Message = fmt.Sprintf("Moderate training frequency at %.1f sessions per week.", perWeek)
	default:
		in.Severity = domain.SeverityNeedsImprovement
		in.Message = fmt.Sprintf("Training frequency is %.1f sessions per week; aim for at least two.", perWeek)
	}
	return in
}

func crossDomain(n domain.NutritionSummary, w domain.WorkoutSummary) []domain.Recommendation {
	var out []domain.Recommendation
	if w.SessionsPerWeek >= 4 && n.Calories.Goal > 0 && n.Calories.Ratio < 85 {
		out = append(out, domain.Recommendation{
			Priority: domain.PriorityHigh,
			Category: CategoryFuelTraining,
			Message:  fmt.Sprintf("You train %.1f times a week but eat %.0f%% of your calorie goal. Eat more to support your training load.", w.SessionsPerWeek, n.Calories.Ratio),
		})
	}
	if w.SessionsPerWeek >= 3 && n.Protein.Goal > 0 && n.Protein.Adherence < 80 {
		out = append(out, domain.Recommendation{
			Priority: domain.PriorityHigh,
			Category: CategoryProteinForRecovery,
			Message:  "Your training frequency needs more protein for recovery. Prioritise protein after workouts.",
		})
	}
	if w.SessionsPerWeek < 2 && n.Calories.Goal > 0 && n.Calories.Ratio > 110 {
		out = append(out, domain.Recommendation{
			Priority: domain.PriorityMedium,
			Category: CategoryEnergyBalance,
			Message:  "Calorie intake is above goal while training is infrequent. Add sessions or trim portions to rebalance.",
		})
	}
	if w.AverageSessionMinutes > 90 && n.Carbs.Goal > 0 && n.Carbs.Adherence < 70 {
		out = append(out, domain.Recommendation{
			Priority: domain.PriorityMedium,
			Category: CategoryEnduranceFuel,
			Message:  "Long sessions run on carbohydrates. Increase carb intake on training days.",
		})
	}
	if n.OverallAdherence >= 90 && w.SessionsPerWeek >= 3 {
		out = append(out, domain.Recommendation{
			Priority: domain.PriorityLow,
			Category: CategoryMaintainMomentum,
			Message:  "Nutrition and training are both on track. Keep the current routine going.",
		})
	}
	return out
}
