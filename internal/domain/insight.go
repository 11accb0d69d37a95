package domain

// InsightDomain names the activity domain an insight belongs to.
type InsightDomain string

const (
	DomainNutrition InsightDomain = "nutrition"
	DomainWorkout   InsightDomain = "workout"
)

// Severity is the banded label attached to an insight.
type Severity string

const (
	SeverityExcellent        Severity = "excellent"
	SeverityGood             Severity = "good"
	SeverityModerate         Severity = "moderate"
	SeverityNeedsImprovement Severity = "needs_improvement"
	SeveritySuccess          Severity = "success"
	SeverityWarning          Severity = "warning"
	SeverityCaution          Severity = "caution"
	SeverityImprovement      Severity = "improvement"
	SeverityInfo             Severity = "info"
)

// Priority orders overall recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns 0 for high, 1 for medium, 2 for low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Insight is a single rule-derived observation.
type Insight struct {
	Domain   InsightDomain
	Severity Severity
	Category string
	Message  string
}

// Recommendation is an overall, possibly cross-domain, suggestion.
type Recommendation struct {
	Priority Priority
	Category string
	Message  string
}

// InsightSet is the insight engine output.
type InsightSet struct {
	Insights        []Insight
	Recommendations []Recommendation
}

// ByDomain returns the insights for a single domain, preserving order.
func (s InsightSet) ByDomain(d InsightDomain) []Insight {
	out := make([]Insight, 0, len(s.Insights))
	for _, in := range s.Insights {
		if in.Domain == d {
			out = append(out, in)
		}
	}
	return out
}
