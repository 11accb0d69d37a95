package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progressreports/internal/auth"
	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/foodlookup"
	"example.com/progressreports/internal/persistence/memory"
)

var fixedNow = time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	queue *memory.Queue
	mux   *http.ServeMux
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	store := memory.NewStore()
	queue := &memory.Queue{}
	service := domain.NewService(store, store.Settings(), queue,
		domain.WithClock(func() time.Time { return fixedNow }),
		domain.WithManualJobExpiry(time.Hour),
	)
	mux := http.NewServeMux()
	NewHandler(service, opts...).RegisterRoutes(mux)
	return fixture{store: store, queue: queue, mux: mux}
}

func (f fixture) do(t *testing.T, method, target, body, user string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if user != "" {
		granted := make(map[string]struct{}, len(scopes))
		for _, s := range scopes {
			granted[s] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
			Subject:   user,
			Scopes:    granted,
			ExpiresAt: fixedNow.Add(time.Hour),
		}))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func (f fixture) seedReport(t *testing.T, id, user string, createdAt time.Time) *domain.ProgressReport {
	t.Helper()
	window, err := domain.WindowEndingAt(createdAt, 7)
	require.NoError(t, err)
	report := domain.NewPendingReport(id, user, window, domain.ReportKindShort, createdAt)
	require.NoError(t, f.store.Create(context.Background(), report))
	return report
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestListReportsPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.seedReport(t, fmt.Sprintf("r-%d", i), "user-1", fixedNow.Add(time.Duration(i)*time.Hour))
	}
	f.seedReport(t, "foreign", "user-2", fixedNow)

	rr := f.do(t, http.MethodGet, "/v1/reports?limit=3", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[ListReportsResponse](t, rr)
	require.Len(t, page.Items, 3)
	require.Equal(t, "r-4", page.Items[0].ReportID)
	require.Equal(t, "pending", page.Items[0].Status)
	require.NotEmpty(t, page.NextCursor)

	rr = f.do(t, http.MethodGet, "/v1/reports?limit=3&cursor="+page.NextCursor, "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	page = decode[ListReportsResponse](t, rr)
	require.Len(t, page.Items, 2)
	require.Equal(t, "r-1", page.Items[0].ReportID)
	require.Empty(t, page.NextCursor)
}

func TestListReportsRejectsBadCursor(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/v1/reports?cursor=@@@", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetReportRendersStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	generated := f.seedReport(t, "gen", "user-1", fixedNow)
	require.NoError(t, generated.MarkGenerated(domain.Sections{ProgressSummary: "solid week", KeyTakeaways: "sleep more"}, fixedNow))
	require.NoError(t, f.store.Save(ctx, generated))

	failed := f.seedReport(t, "fail", "user-1", fixedNow)
	require.NoError(t, failed.MarkFailed(domain.Failure{Kind: domain.FailureInsufficientData, Message: domain.InsufficientDataMessage}, fixedNow))
	require.NoError(t, f.store.Save(ctx, failed))

	rr := f.do(t, http.MethodGet, "/v1/reports/gen", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[ReportView](t, rr)
	require.Equal(t, "generated", view.Status)
	require.NotNil(t, view.Sections)
	require.Equal(t, "solid week", view.Sections.ProgressSummary)
	require.Empty(t, view.GenerationError)

	rr = f.do(t, http.MethodGet, "/v1/reports/fail", "", "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusOK, rr.Code)
	view = decode[ReportView](t, rr)
	require.Equal(t, "failed", view.Status)
	require.Nil(t, view.Sections)
	require.Equal(t, "insufficient_data", view.FailureKind)
	require.Equal(t, domain.InsufficientDataMessage, view.GenerationError)

	rr = f.do(t, http.MethodGet, "/v1/reports/gen", "", "user-2", auth.ScopeReportsRead)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMarkReadAndDelete(t *testing.T) {
	f := newFixture(t)
	f.seedReport(t, "r-1", "user-1", fixedNow)

	rr := f.do(t, http.MethodPut, "/v1/reports/r-1/read", "", "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusNoContent, rr.Code)
	got, err := f.store.Get(context.Background(), "user-1", "r-1")
	require.NoError(t, err)
	require.True(t, got.IsRead)

	rr = f.do(t, http.MethodPut, "/v1/reports/r-1/read", `{"is_read":false}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusNoContent, rr.Code)
	got, err = f.store.Get(context.Background(), "user-1", "r-1")
	require.NoError(t, err)
	require.False(t, got.IsRead)

	rr = f.do(t, http.MethodPut, "/v1/reports/missing/read", "", "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/reports/r-1", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/reports/r-1", "", "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodDelete, "/v1/reports/r-1", "", "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRequestReportEnqueuesManualJob(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/reports", `{"kind":"detailed"}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	resp := decode[RequestReportResponse](t, rr)
	require.NotEmpty(t, resp.JobID)
	require.Equal(t, fixedNow, resp.WindowEnd)
	require.Equal(t, fixedNow.AddDate(0, 0, -domain.DefaultIntervalDays), resp.WindowStart)
	require.NotNil(t, resp.ExpiresAt)
	require.Equal(t, fixedNow.Add(time.Hour), *resp.ExpiresAt)

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, domain.TriggerManual, jobs[0].Trigger)
	require.Equal(t, domain.ReportKindDetailed, jobs[0].Kind)
	require.Equal(t, "user-1", jobs[0].UserID)
}

func TestRequestReportExplicitWindow(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/reports", `{"window_start":"2024-01-01","window_end":"2024-01-05T12:00:00Z"}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), jobs[0].Window.Start)
	require.Equal(t, domain.ReportKindShort, jobs[0].Kind)
}

func TestRequestReportValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"unknown kind":   `{"kind":"epic"}`,
		"half window":    `{"window_start":"2024-01-01"}`,
		"reversed":       `{"window_start":"2024-01-05","window_end":"2024-01-01"}`,
		"garbage bounds": `{"window_start":"yesterday","window_end":"today"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/v1/reports", body, "user-1", auth.ScopeReportsWrite)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Contains(t, rr.Body.String(), "validation_failed")
		})
	}
	require.Empty(t, f.queue.Jobs())
}

func TestReportSettingsLifecycle(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/report-settings", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/report-settings", `{"interval_days":5}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "validation_failed")

	rr = f.do(t, http.MethodPut, "/v1/report-settings", `{"interval_days":121}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/report-settings", `{"interval_days":14,"kind":"detailed"}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decode[SettingsView](t, rr)
	require.Equal(t, 14, view.IntervalDays)
	require.True(t, view.Enabled)
	require.Equal(t, "2024-01-09", view.NextDueDate)

	rr = f.do(t, http.MethodGet, "/v1/report-settings", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	view = decode[SettingsView](t, rr)
	require.Equal(t, "detailed", view.Kind)

	rr = f.do(t, http.MethodPut, "/v1/report-settings", `{"interval_days":30,"enabled":false}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusOK, rr.Code)
	stored, err := f.store.Settings().Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.False(t, stored.Enabled)
	require.Equal(t, 30, stored.IntervalDays)
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/reports", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/report-settings", `{"interval_days":7}`, "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/reports", "", "user-1")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPatch, "/v1/reports", "", "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

type stubFoods struct {
	foods []foodlookup.Food
	err   error
	query string
	limit int
}

func (s *stubFoods) Search(_ context.Context, query string, limit int) ([]foodlookup.Food, error) {
	s.query, s.limit = query, limit
	return s.foods, s.err
}

func TestSearchFoods(t *testing.T) {
	foods := &stubFoods{foods: []foodlookup.Food{{ID: "1", Name: "Oats", Calories: 389}}}
	f := newFixture(t, WithFoodSearch(foods))

	rr := f.do(t, http.MethodGet, "/v1/foods/search?q=oats&limit=5", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[FoodSearchResponse](t, rr)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "Oats", resp.Items[0].Name)
	require.Equal(t, "oats", foods.query)
	require.Equal(t, 5, foods.limit)

	rr = f.do(t, http.MethodGet, "/v1/foods/search", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	foods.err = fmt.Errorf("%w: status 500", foodlookup.ErrUpstream)
	rr = f.do(t, http.MethodGet, "/v1/foods/search?q=oats", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	foods.err = foodlookup.ErrNotConfigured
	rr = f.do(t, http.MethodGet, "/v1/foods/search?q=oats", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSearchFoodsWithoutClient(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/v1/foods/search?q=oats", "", "user-1", auth.ScopeReportsRead)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, domain.ReportJob, domain.JobOptions) (domain.ReportJob, error) {
	return domain.ReportJob{}, errors.New("outbox unavailable")
}

func TestRequestReportQueueFailure(t *testing.T) {
	store := memory.NewStore()
	service := domain.NewService(store, store.Settings(), failingQueue{})
	mux := http.NewServeMux()
	NewHandler(service).RegisterRoutes(mux)
	f := fixture{store: store, mux: mux}

	rr := f.do(t, http.MethodPost, "/v1/reports", `{}`, "user-1", auth.ScopeReportsWrite)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "outbox unavailable")
}
