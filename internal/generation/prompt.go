package generation

import (
	"fmt"
	"strings"

	"example.com/progressreports/internal/aggregator"
	"example.com/progressreports/internal/domain"
)

// Section names the model is asked to emit, in order.
const (
	SectionProgressSummary          = "PROGRESS SUMMARY"
	SectionWorkoutOverview          = "WORKOUT OVERVIEW"
	SectionWorkoutStrengths         = "WORKOUT STRENGTHS"
	SectionWorkoutImprovements      = "WORKOUT IMPROVEMENTS"
	SectionWorkoutRecommendations   = "WORKOUT RECOMMENDATIONS"
	SectionNutritionOverview        = "NUTRITION OVERVIEW"
	SectionNutritionStrengths       = "NUTRITION STRENGTHS"
	SectionNutritionImprovements    = "NUTRITION IMPROVEMENTS"
	SectionNutritionRecommendations = "NUTRITION RECOMMENDATIONS"
	SectionKeyTakeaways             = "KEY TAKEAWAYS"
)

var sectionOrder = []string{
	SectionProgressSummary,
	SectionWorkoutOverview,
	SectionWorkoutStrengths,
	SectionWorkoutImprovements,
	SectionWorkoutRecommendations,
	SectionNutritionOverview,
	SectionNutritionStrengths,
	SectionNutritionImprovements,
	SectionNutritionRecommendations,
	SectionKeyTakeaways,
}

type kindBudget struct {
	words     string
	maxTokens int
}

var budgets = map[domain.ReportKind]kindBudget{
	domain.ReportKindShort:    {words: "about 500 words", maxTokens: 1200},
	domain.ReportKindDetailed: {words: "between 1000 and 1500 words", maxTokens: 3000},
}

const instructionTemplate = `You are a certified fitness coach and registered dietitian writing a progress report for one client.
Write %s in a supportive, specific and honest tone.

Ground every statement in the data, insights and recommendations provided. Do not invent numbers,
exercises or foods that are not in the data. When a domain has no data, say so briefly and encourage
the client to start tracking it.

Structure the report with exactly these section headers, each on its own line, in this order:
%s
Put the content of each section below its header. Do not add any other headers.`

// BuildRequest renders the generation request for a summary and its insights.
func BuildRequest(summary domain.ActivitySummary, set domain.InsightSet, kind domain.ReportKind) Request {
	budget, ok := budgets[kind]
	if !ok {
		budget = budgets[domain.ReportKindShort]
	}

	headers := make([]string, 0, len(sectionOrder))
	for _, name := range sectionOrder {
		headers = append(headers, Marker(name))
	}

	return Request{
		SystemInstructions: fmt.Sprintf(instructionTemplate, budget.words, strings.Join(headers, "\n")),
		UserContent:        renderContext(summary, set),
		MaxOutputTokens:    budget.maxTokens,
	}
}

// Marker renders a section header in the delimiter format the parser recognises.
func Marker(name string) string {
	return "=== " + name + " ==="
}

func renderContext(summary domain.ActivitySummary, set domain.InsightSet) string {
	var b strings.Builder
	b.WriteString(aggregator.Digest(summary))

	b.WriteString("\nINSIGHTS\n")
	if len(set.Insights) == 0 {
		b.WriteString("(none)\n")
	}
	for _, in := range set.Insights {
		fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", in.Domain, in.Severity, in.Category, in.Message)
	}

	b.WriteString("\nRECOMMENDATIONS\n")
	if len(set.Recommendations) == 0 {
		b.WriteString("(none)\n")
	}
	for _, rec := range set.Recommendations {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", rec.Priority, rec.Category, rec.Message)
	}

	b.WriteString("\nBase the narrative on the insights and recommendations above.\n")
	return b.String()
}
