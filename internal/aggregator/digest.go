package aggregator

import (
	"fmt"
	"strings"

	"example.com/progressreports/internal/domain"
)

// topExercises caps the per-exercise lines in a digest.
const topExercises = 10

// Digest flattens a summary into plain text suitable as generation context.
func Digest(s domain.ActivitySummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reporting period: %s to %s (%d days)\n",
		s.Window.Start.Format("2006-01-02"), s.Window.End.Format("2006-01-02"), s.Window.Days())

	b.WriteString("\nPROFILE\n")
	writeLine(&b, "Goal", orUnknown(s.Profile.Goal))
	writeLine(&b, "Activity level", orUnknown(s.Profile.ActivityLevel))
	if s.Profile.CurrentWeightKg > 0 {
		writeLine(&b, "Weight", fmt.Sprintf("start %.1f kg, current %.1f kg, target %.1f kg",
			s.Profile.StartWeightKg, s.Profile.CurrentWeightKg, s.Profile.TargetWeightKg))
	}

	b.WriteString("\nNUTRITION\n")
	n := s.Nutrition
	switch {
	case n.Error != "":
		writeLine(&b, "Status", "unavailable ("+n.Error+")")
	case !n.HasData:
		writeLine(&b, "Status", n.Message)
	default:
		writeLine(&b, "Tracked days", fmt.Sprintf("%d of %d", n.TrackedDays, s.Window.Days()))
		writeMacro(&b, "Calories", "kcal", n.Calories)
		writeMacro(&b, "Protein", "g", n.Protein)
		writeMacro(&b, "Carbs", "g", n.Carbs)
		writeMacro(&b, "Fat", "g", n.Fat)
		writeLine(&b, "Overall adherence", fmt.Sprintf("%.0f%%", n.OverallAdherence))
		writeLine(&b, "Calorie split", fmt.Sprintf("protein %.0f%%, carbs %.0f%%, fat %.0f%%",
			n.Distribution.ProteinPct, n.Distribution.CarbsPct, n.Distribution.FatPct))
	}

	b.WriteString("\nWORKOUTS\n")
	w := s.Workout
	switch {
	case w.Error != "":
		writeLine(&b, "Status", "unavailable ("+w.Error+")")
	case !w.HasData:
		writeLine(&b, "Status", w.Message)
	default:
		writeLine(&b, "Sessions", fmt.Sprintf("%d (%.1f per week)", w.TotalSessions, w.SessionsPerWeek))
		writeLine(&b, "Training time", fmt.Sprintf("%.0f min total, %.0f min average", w.TotalMinutes, w.AverageSessionMinutes))
		writeLine(&b, "Sets", fmt.Sprintf("%d total, %.1f per session", w.TotalSets, w.AverageSetsPerSession))
		writeLine(&b, "Distinct exercises", fmt.Sprintf("%d", w.ExerciseVariety))
		names := SortedExercises(w.ExerciseVolume)
		if len(names) > topExercises {
			names = names[:topExercises]
		}
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %.0f kg volume\n", name, w.ExerciseVolume[name])
		}
	}

	return b.String()
}

func writeLine(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func writeMacro(b *strings.Builder, label, unit string, m domain.MacroStat) {
	if m.Goal <= 0 {
		writeLine(b, label, fmt.Sprintf("%.0f %s average (no goal set)", m.Average, unit))
		return
	}
	writeLine(b, label, fmt.Sprintf("%.0f %s average vs %.0f %s goal (%.0f%% adherence)", m.Average, unit, m.Goal, unit, m.Adherence))
}

func orUnknown(v string) string {
	if v == "" {
		return "not set"
	}
	return v
}
