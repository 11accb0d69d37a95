// Package api exposes HTTP handlers for progress reports and cadence settings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"example.com/progressreports/internal/auth"
	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/foodlookup"
	"example.com/progressreports/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// FoodSearcher looks up foods in the third-party nutrition database.
type FoodSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]foodlookup.Food, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	foods   FoodSearcher
	logger  *zap.Logger
}

// Option configures optional Handler dependencies.
type Option func(*Handler)

// WithFoodSearch enables /v1/foods/search.
func WithFoodSearch(foods FoodSearcher) Option {
	return func(h *Handler) { h.foods = foods }
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{service: service, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reports", h.reports)
	mux.HandleFunc("/v1/reports/", h.reportByID)
	mux.HandleFunc("/v1/report-settings", h.reportSettings)
	mux.HandleFunc("/v1/foods/search", h.searchFoods)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) reports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listReports(w, r)
	case http.MethodPost:
		h.requestReport(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) reportByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/reports/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing report id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getReport(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.deleteReport(w, r, id)
	case action == "read" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		h.markRead(w, r, id)
	case action != "" && action != "read":
		writeError(w, http.StatusNotFound, "not_found", "unknown report resource")
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeReportsRead)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	reports, next, err := h.service.ListReports(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		h.serverError(w, "list reports", err)
		return
	}

	items := make([]ReportView, 0, len(reports))
	for i := range reports {
		items = append(items, toReportView(&reports[i]))
	}
	writeJSON(w, http.StatusOK, ListReportsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := authorize(w, r, auth.ScopeReportsRead)
	if !ok {
		return
	}

	report, err := h.service.GetReport(r.Context(), claims.Subject, id)
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		h.serverError(w, "get report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportView(report))
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := authorize(w, r, auth.ScopeReportsWrite)
	if !ok {
		return
	}

	req := MarkReadRequest{IsRead: true}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	if err := h.service.SetReportRead(r.Context(), claims.Subject, id, req.IsRead); err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		h.serverError(w, "mark report read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteReport(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := authorize(w, r, auth.ScopeReportsWrite)
	if !ok {
		return
	}

	if err := h.service.DeleteReport(r.Context(), claims.Subject, id); err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		h.serverError(w, "delete report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeReportsWrite)
	if !ok {
		return
	}

	var req RequestReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	input, err := req.toInput(claims.Subject, h.service)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	job, err := h.service.RequestReport(r.Context(), input)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidWindow) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.serverError(w, "request report", err)
		return
	}

	h.logger.Info("report requested",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.Stringer("window", job.Window),
	)
	writeJSON(w, http.StatusAccepted, RequestReportResponse{
		JobID:       job.ID,
		WindowStart: job.Window.Start,
		WindowEnd:   job.Window.End,
		Kind:        string(job.Kind),
		ExpiresAt:   job.ExpiresAt,
	})
}

func (h *Handler) reportSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.updateSettings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeReportsRead)
	if !ok {
		return
	}

	settings, err := h.service.GetSettings(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "report settings not found")
			return
		}
		h.serverError(w, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(*settings))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeReportsWrite)
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	kind := domain.ReportKindShort
	if req.Kind != "" {
		kind = domain.ReportKind(req.Kind)
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	settings, err := h.service.UpdateSettings(r.Context(), domain.UpdateSettingsInput{
		UserID:       claims.Subject,
		IntervalDays: req.IntervalDays,
		Kind:         kind,
		Enabled:      enabled,
	})
	if err != nil {
		if errors.Is(err, domain.ErrIntervalOutOfRange) || errors.Is(err, domain.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.serverError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(*settings))
}

func (h *Handler) searchFoods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, auth.ScopeReportsRead); !ok {
		return
	}
	if h.foods == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "food lookup is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing q parameter")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	foods, err := h.foods.Search(r.Context(), query, limit)
	switch {
	case errors.Is(err, foodlookup.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "food lookup is not configured")
		return
	case err != nil:
		h.logger.Warn("food search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream_error", "food lookup failed")
		return
	}
	if foods == nil {
		foods = []foodlookup.Food{}
	}
	writeJSON(w, http.StatusOK, FoodSearchResponse{Items: foods})
}

// authorize resolves the caller and checks scope. A write scope implies read.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	allowed := claims.HasScope(scope)
	if scope == auth.ScopeReportsRead {
		allowed = allowed || claims.HasScope(auth.ScopeReportsWrite)
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "token has no subject")
		return nil, false
	}
	return claims, true
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
