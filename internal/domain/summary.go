package domain

// MacroStat describes one macro's average intake against its goal.
// Ratio is the uncapped percentage of goal; Adherence is Ratio clamped to [0,100].
type MacroStat struct {
	Average   float64
	Goal      float64
	Ratio     float64
	Adherence float64
}

// MacroDistribution is the share of average calories supplied by each macro, in percent.
type MacroDistribution struct {
	ProteinPct float64
	CarbsPct   float64
	FatPct     float64
}

// NutritionSummary aggregates daily totals over a window.
type NutritionSummary struct {
	HasData          bool
	Message          string
	Error            string
	TrackedDays      int
	Calories         MacroStat
	Protein          MacroStat
	Carbs            MacroStat
	Fat              MacroStat
	OverallAdherence float64
	Distribution     MacroDistribution
}

// WorkoutSummary aggregates completed sessions over a window.
type WorkoutSummary struct {
	HasData               bool
	Message               string
	Error                 string
	TotalSessions         int
	TotalMinutes          float64
	SessionsPerWeek       float64
	AverageSessionMinutes float64
	TotalSets             int
	AverageSetsPerSession float64
	ExerciseVolume        map[string]float64
	ExerciseVariety       int
}

// ProfileSnapshot is denormalised profile context passed to text generation only.
type ProfileSnapshot struct {
	Goal            string
	ActivityLevel   string
	StartWeightKg   float64
	CurrentWeightKg float64
	TargetWeightKg  float64
}

// ActivitySummary is the aggregator output for one user and window.
type ActivitySummary struct {
	UserID    string
	Window    ReportingWindow
	Nutrition NutritionSummary
	Workout   WorkoutSummary
	Profile   ProfileSnapshot
}

// HasAnyData reports whether at least one domain produced data.
func (s ActivitySummary) HasAnyData() bool {
	return s.Nutrition.HasData || s.Workout.HasData
}
