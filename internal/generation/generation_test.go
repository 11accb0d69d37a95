package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progressreports/internal/domain"
)

func TestParseSectionsMapsKnownMarkers(t *testing.T) {
	reply := strings.Join([]string{
		"Sure! Here is the report.",
		Marker(SectionProgressSummary),
		"Solid week overall.",
		"",
		"=== Workout Overview ===",
		"Four sessions.",
		"===workout strengths===",
		"Consistent squats.",
		"=== Training Improvements ===",
		"More pulling.",
		"=== Workout Recommendations ===",
		"Add rows.",
		"=== Nutrition Overview ===",
		"Close to target.",
		"=== Nutrition Strengths ===",
		"Protein on point.",
		"=== Diet: areas to improve ===",
		"Fewer snacks.",
		"=== Nutrition Recommendations ===",
		"Plan meals.",
		"=== Bonus Trivia ===",
		"This is dropped.",
		"=== Key Takeaways ===",
		"Keep going.",
	}, "\n")

	s, structured := ParseSections(reply)

	require.True(t, structured)
	require.Equal(t, "Solid week overall.", s.ProgressSummary)
	require.Equal(t, "Four sessions.", s.WorkoutOverview)
	require.Equal(t, "Consistent squats.", s.WorkoutStrengths)
	require.Equal(t, "More pulling.", s.WorkoutImprovements)
	require.Equal(t, "Add rows.", s.WorkoutRecommendations)
	require.Equal(t, "Close to target.", s.NutritionOverview)
	require.Equal(t, "Protein on point.", s.NutritionStrengths)
	require.Equal(t, "Fewer snacks.", s.NutritionImprovements)
	require.Equal(t, "Plan meals.", s.NutritionRecommendations)
	require.Equal(t, "Keep going.", s.KeyTakeaways)
}

func TestParseSectionsFallsBackWithoutMarkers(t *testing.T) {
	reply := "  You had a great week.\nKeep it up!  "

	s, structured := ParseSections(reply)

	require.False(t, structured)
	require.Equal(t, "You had a great week.\nKeep it up!", s.ProgressSummary)
	require.Equal(t, domain.Sections{ProgressSummary: s.ProgressSummary}, s)
}

func TestParseSectionsFallsBackWhenNoMarkerIsRecognised(t *testing.T) {
	reply := "=== Weather ===\nSunny.\n=== Mood ===\nGood."

	s, structured := ParseSections(reply)

	require.False(t, structured)
	require.Equal(t, reply, s.ProgressSummary)
}

func TestParseSectionsIgnoresInlineDelimiters(t *testing.T) {
	reply := "=== Key Takeaways ===\nUse === sparingly === in text."

	s, structured := ParseSections(reply)

	require.True(t, structured)
	require.Equal(t, "Use === sparingly === in text.", s.KeyTakeaways)
}

func TestParseSectionsAcceptsDecoratedMarkers(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{name: "heading", reply: "### === WORKOUT OVERVIEW ===\nThree sessions.\n### === KEY TAKEAWAYS ===\nKeep going."},
		{name: "bold", reply: "**=== WORKOUT OVERVIEW ===**\nThree sessions.\n**=== KEY TAKEAWAYS ===**\nKeep going."},
		{name: "underscore", reply: "_=== WORKOUT OVERVIEW ===_\nThree sessions.\n_=== KEY TAKEAWAYS ===_\nKeep going."},
		{name: "crlf", reply: "=== WORKOUT OVERVIEW ===\r\nThree sessions.\r\n=== KEY TAKEAWAYS ===\r\nKeep going.\r\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, structured := ParseSections(tc.reply)

			require.True(t, structured)
			require.Equal(t, "Three sessions.", s.WorkoutOverview)
			require.Equal(t, "Keep going.", s.KeyTakeaways)
			require.Empty(t, s.ProgressSummary)
		})
	}
}

func TestBuildRequestUsesKindBudget(t *testing.T) {
	set := domain.InsightSet{
		Insights:        []domain.Insight{{Domain: domain.DomainNutrition, Severity: domain.SeverityGood, Category: "overall_adherence", Message: "Good."}},
		Recommendations: []domain.Recommendation{{Priority: domain.PriorityHigh, Category: "start_training", Message: "Train."}},
	}
	window, err := domain.WindowEndingAt(time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)
	summary := domain.ActivitySummary{Window: window}

	short := BuildRequest(summary, set, domain.ReportKindShort)
	detailed := BuildRequest(summary, set, domain.ReportKindDetailed)

	require.Contains(t, short.SystemInstructions, "about 500 words")
	require.Contains(t, detailed.SystemInstructions, "between 1000 and 1500 words")
	require.Greater(t, detailed.MaxOutputTokens, short.MaxOutputTokens)
	for _, name := range sectionOrder {
		require.Contains(t, short.SystemInstructions, Marker(name))
	}
	require.Contains(t, short.UserContent, "- [nutrition/good] overall_adherence: Good.")
	require.Contains(t, short.UserContent, "- [high] start_training: Train.")
}

func TestOpenAIGeneratorReturnsReply(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"=== Key Takeaways ===\nDone."},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator("test-key", "coach-model", WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := gen.Generate(context.Background(), Request{SystemInstructions: "sys", UserContent: "data", MaxOutputTokens: 64})
	require.NoError(t, err)
	require.Equal(t, "=== Key Takeaways ===\nDone.", resp.Text)
	require.Equal(t, 12, resp.PromptTokens)
	require.Equal(t, 3, resp.CompletionTokens)

	require.Equal(t, "coach-model", got.Model)
	require.Equal(t, 64, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "data", got.Messages[1].Content)
}

func TestOpenAIGeneratorWrapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator("test-key", "coach-model", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{UserContent: "data"})
	require.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestOpenAIGeneratorHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gen, err := NewOpenAIGenerator("test-key", "coach-model", WithBaseURL(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, Request{UserContent: "data"})
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOpenAIGeneratorRejectsEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator("test-key", "coach-model", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{UserContent: "data"})
	require.ErrorIs(t, err, ErrEmptyReply)
}

func TestNewOpenAIGeneratorValidates(t *testing.T) {
	_, err := NewOpenAIGenerator("", "m")
	require.Error(t, err)
	_, err = NewOpenAIGenerator("k", " ")
	require.Error(t, err)
}
