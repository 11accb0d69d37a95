package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/events"
	"example.com/progressreports/internal/persistence/memory"
)

var jobNow = time.Date(2024, time.January, 8, 3, 0, 0, 0, time.UTC)

func jobMessage(t *testing.T, opts domain.JobOptions) Message {
	t.Helper()
	window, err := domain.WindowEndingAt(jobNow, 7)
	require.NoError(t, err)
	job := domain.NewReportJob("user-1", window, domain.ReportKindShort, domain.TriggerSchedule, jobNow).WithOptions(opts)
	body, err := json.Marshal(events.NewReportRequested(job))
	require.NoError(t, err)
	return Message{Topic: "report_jobs", EventType: events.TypeReportRequested, Payload: body}
}

func newTestJobHandler(gen ReportGenerator, policy RetryPolicy) (*ReportJobHandler, *[]time.Duration) {
	h := NewReportJobHandler(gen, policy, nil)
	h.now = func() time.Time { return jobNow.Add(time.Minute) }
	var waits []time.Duration
	h.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return h, &waits
}

func TestReportJobHandlerRetriesTransientFailures(t *testing.T) {
	gen := &scriptedGenerator{failures: []domain.FailureKind{domain.FailureBackend, domain.FailureTimeout}}
	h, waits := newTestJobHandler(gen, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	require.NoError(t, h.Handle(context.Background(), jobMessage(t, domain.JobOptions{})))

	require.Equal(t, 3, gen.calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	require.Equal(t, "user-1", gen.userID)
	require.Equal(t, domain.ReportKindShort, gen.kind)
}

func TestReportJobHandlerStopsAfterMaxAttempts(t *testing.T) {
	gen := &scriptedGenerator{failures: []domain.FailureKind{domain.FailureBackend, domain.FailureBackend, domain.FailureBackend, domain.FailureBackend}}
	h, waits := newTestJobHandler(gen, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute})
	before := testutil.ToFloat64(jobOutcomeCounter.WithLabelValues("failed"))

	require.NoError(t, h.Handle(context.Background(), jobMessage(t, domain.JobOptions{})))

	require.Equal(t, 3, gen.calls)
	require.Len(t, *waits, 2)
	require.InDelta(t, before+1, testutil.ToFloat64(jobOutcomeCounter.WithLabelValues("failed")), 0.0001)
}

func TestReportJobHandlerNeverRetriesInsufficientData(t *testing.T) {
	gen := &scriptedGenerator{failures: []domain.FailureKind{domain.FailureInsufficientData}}
	h, waits := newTestJobHandler(gen, DefaultRetryPolicy)

	require.NoError(t, h.Handle(context.Background(), jobMessage(t, domain.JobOptions{})))

	require.Equal(t, 1, gen.calls)
	require.Empty(t, *waits)
}

func TestReportJobHandlerDropsExpiredJobs(t *testing.T) {
	gen := &scriptedGenerator{}
	h, _ := newTestJobHandler(gen, DefaultRetryPolicy)
	h.now = func() time.Time { return jobNow.Add(3 * time.Hour) }
	before := testutil.ToFloat64(jobOutcomeCounter.WithLabelValues("expired"))

	require.NoError(t, h.Handle(context.Background(), jobMessage(t, domain.JobOptions{ExpiresAfter: 2 * time.Hour})))

	require.Zero(t, gen.calls)
	require.InDelta(t, before+1, testutil.ToFloat64(jobOutcomeCounter.WithLabelValues("expired")), 0.0001)
}

func TestReportJobHandlerAcknowledgesInvalidPayload(t *testing.T) {
	gen := &scriptedGenerator{}
	h, _ := newTestJobHandler(gen, DefaultRetryPolicy)

	require.NoError(t, h.Handle(context.Background(), Message{Payload: json.RawMessage(`{"user_id":"u","kind":"weekly"}`)}))
	require.NoError(t, h.Handle(context.Background(), Message{Payload: json.RawMessage(`[]`)}))
	require.Zero(t, gen.calls)
}

func TestReportJobHandlerReturnsWhenCancelledDuringBackoff(t *testing.T) {
	gen := &scriptedGenerator{failures: []domain.FailureKind{domain.FailureTimeout}}
	h, _ := newTestJobHandler(gen, DefaultRetryPolicy)
	h.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.Handle(ctx, jobMessage(t, domain.JobOptions{})), context.Canceled)
	require.Equal(t, 1, gen.calls)
}

func TestRetryPolicyDelayIsCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 10 * time.Second, MaxDelay: time.Minute}
	require.Equal(t, 10*time.Second, p.Delay(1))
	require.Equal(t, 40*time.Second, p.Delay(3))
	require.Equal(t, time.Minute, p.Delay(4))
	require.Equal(t, time.Minute, p.Delay(70))
}

func TestProfileHandlerRecalculatesGoals(t *testing.T) {
	store := memory.NewStore()
	birth := time.Date(1994, time.January, 1, 0, 0, 0, 0, time.UTC)
	store.PutProfile(domain.UserProfile{UserID: "u1", Sex: "male", BirthDate: &birth, HeightCm: 180, CurrentWeightKg: 80, ActivityLevel: "moderately_active", Goal: "maintain"})
	h := NewProfileHandler(store, nil)
	h.now = func() time.Time { return jobNow }

	require.NoError(t, h.Handle(context.Background(), profileMessage(t, "u1")))

	goals, err := store.Goals(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, goals)
	require.Equal(t, 2759.0, goals.Calories)
	require.Equal(t, 144.0, goals.ProteinG)
}

func TestProfileHandlerSkipsMissingAndIncompleteProfiles(t *testing.T) {
	store := memory.NewStore()
	store.PutProfile(domain.UserProfile{UserID: "partial", Sex: "female"})
	h := NewProfileHandler(store, nil)

	require.NoError(t, h.Handle(context.Background(), profileMessage(t, "ghost")))
	require.NoError(t, h.Handle(context.Background(), profileMessage(t, "partial")))
	require.NoError(t, h.Handle(context.Background(), Message{Payload: json.RawMessage(`{}`)}))

	goals, err := store.Goals(context.Background(), "partial")
	require.NoError(t, err)
	require.Nil(t, goals)
}

func TestProfileHandlerReturnsStorageErrors(t *testing.T) {
	h := NewProfileHandler(failingProfileStore{}, nil)

	err := h.Handle(context.Background(), profileMessage(t, "u1"))
	require.ErrorContains(t, err, "load profile u1")
}

func profileMessage(t *testing.T, userID string) Message {
	t.Helper()
	body, err := json.Marshal(events.ProfileUpdated{UserID: userID, OccurredAt: jobNow})
	require.NoError(t, err)
	return Message{Topic: "profile_events", EventType: events.TypeProfileUpdated, Payload: body}
}

// scriptedGenerator fails with the scripted kinds in order, then succeeds.
type scriptedGenerator struct {
	mu       sync.Mutex
	failures []domain.FailureKind
	calls    int
	userID   string
	kind     domain.ReportKind
}

func (g *scriptedGenerator) Generate(_ context.Context, userID string, window domain.ReportingWindow, kind domain.ReportKind) *domain.ProgressReport {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.userID, g.kind = userID, kind
	report := domain.NewPendingReport("r", userID, window, kind, jobNow)
	if g.calls <= len(g.failures) {
		_ = report.MarkFailed(domain.Failure{Kind: g.failures[g.calls-1], Message: "scripted"}, jobNow)
		return report
	}
	_ = report.MarkGenerated(domain.Sections{ProgressSummary: "ok"}, jobNow)
	return report
}

type failingProfileStore struct{}

func (failingProfileStore) Profile(context.Context, string) (*domain.UserProfile, error) {
	return nil, errors.New("db down")
}

func (failingProfileStore) UpsertGoals(context.Context, domain.NutritionGoals) error { return nil }
