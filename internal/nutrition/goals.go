// Package nutrition derives daily macro targets from a user's profile.
package nutrition

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"example.com/progressreports/internal/domain"
)

// ErrIncompleteProfile is returned when the profile lacks a field the energy estimate needs.
var ErrIncompleteProfile = errors.New("profile incomplete for goal calculation")

const (
	proteinPerKg    = 1.8
	fatShare        = 0.25
	minimumCalories = 1200
)

var activityFactors = map[string]float64{
	"sedentary":         1.2,
	"lightly_active":    1.375,
	"moderately_active": 1.55,
	"very_active":       1.725,
	"extra_active":      1.9,
}

var goalAdjustments = map[string]float64{
	"lose_weight": -500,
	"maintain":    0,
	"gain_muscle": 300,
}

// BMR is the Mifflin-St Jeor resting energy estimate in kcal/day.
func BMR(sex string, weightKg, heightCm float64, age int) (float64, error) {
	base := 10*weightKg + 6.25*heightCm - 5*float64(age)
	switch strings.ToLower(sex) {
	case "male":
		return base + 5, nil
	case "female":
		return base - 161, nil
	default:
		return 0, fmt.Errorf("%w: sex %q", ErrIncompleteProfile, sex)
	}
}

// AgeAt returns completed years between birth and now.
func AgeAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// GoalsFor computes daily calorie and macro targets. Unknown activity levels fall back to
// sedentary and unknown goals to maintenance.
func GoalsFor(profile domain.UserProfile, now time.Time) (domain.NutritionGoals, error) {
	if profile.BirthDate == nil || profile.HeightCm <= 0 || profile.CurrentWeightKg <= 0 {
		return domain.NutritionGoals{}, fmt.Errorf("%w: user %s", ErrIncompleteProfile, profile.UserID)
	}
	bmr, err := BMR(profile.Sex, profile.CurrentWeightKg, profile.HeightCm, AgeAt(*profile.BirthDate, now))
	if err != nil {
		return domain.NutritionGoals{}, err
	}

	factor, ok := activityFactors[strings.ToLower(profile.ActivityLevel)]
	if !ok {
		factor = activityFactors["sedentary"]
	}
	calories := math.Max(bmr*factor+goalAdjustments[strings.ToLower(profile.Goal)], minimumCalories)

	protein := profile.CurrentWeightKg * proteinPerKg
	fat := calories * fatShare / 9
	carbs := math.Max((calories-protein*4-fat*9)/4, 0)

	return domain.NutritionGoals{
		UserID:    profile.UserID,
		Calories:  math.Round(calories),
		ProteinG:  math.Round(protein),
		CarbsG:    math.Round(carbs),
		FatG:      math.Round(fat),
		UpdatedAt: now.UTC(),
	}, nil
}
