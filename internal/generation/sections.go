package generation

import (
	"regexp"
	"strings"

	"example.com/progressreports/internal/domain"
)

// markerPattern tolerates markdown heading or emphasis around a marker and CRLF line endings.
var markerPattern = regexp.MustCompile(`(?m)^[ \t#*_]*===[ \t]*(.+?)[ \t]*===[ \t*_]*\r?$`)

// ParseSections maps a delimited reply onto report sections. Text before the first marker
// and sections whose names are not recognised are discarded. When no marker is recognised
// the whole reply becomes the progress summary and structured is false.
func ParseSections(reply string) (sections domain.Sections, structured bool) {
	matches := markerPattern.FindAllStringSubmatchIndex(reply, -1)
	for i, m := range matches {
		field := fieldFor(&sections, reply[m[2]:m[3]])
		if field == nil {
			continue
		}
		end := len(reply)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(reply[m[1]:end])
		if *field != "" && body != "" {
			*field += "\n\n" + body
		} else if body != "" {
			*field = body
		}
		structured = true
	}

	if !structured {
		return domain.Sections{ProgressSummary: strings.TrimSpace(reply)}, false
	}
	return sections, true
}

func fieldFor(s *domain.Sections, name string) *string {
	n := strings.ToLower(name)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(n, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("takeaway"):
		return &s.KeyTakeaways
	case has("workout", "training", "exercise"):
		switch {
		case has("strength"):
			return &s.WorkoutStrengths
		case has("improve"):
			return &s.WorkoutImprovements
		case has("recommend"):
			return &s.WorkoutRecommendations
		case has("overview", "summary"):
			return &s.WorkoutOverview
		}
	case has("nutrition", "diet"):
		switch {
		case has("strength"):
			return &s.NutritionStrengths
		case has("improve"):
			return &s.NutritionImprovements
		case has("recommend"):
			return &s.NutritionRecommendations
		case has("overview", "summary"):
			return &s.NutritionOverview
		}
	case has("summary", "overview", "progress"):
		return &s.ProgressSummary
	}
	return nil
}
