// Package report drives one end-to-end report generation run.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/generation"
	"example.com/progressreports/internal/insights"
	"example.com/progressreports/internal/observability"
)

// DefaultGenerationTimeout bounds the backend call when no timeout is configured.
const DefaultGenerationTimeout = 90 * time.Second

// Collector produces the activity summary for a user and window.
type Collector interface {
	Collect(ctx context.Context, userID string, window domain.ReportingWindow) domain.ActivitySummary
}

// Orchestrator runs collect, analyze, generate, parse and persist for one report.
type Orchestrator struct {
	reports   domain.ReportRepository
	settings  domain.SettingsRepository
	collector Collector
	generator generation.Generator
	timeout   time.Duration
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option customises the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGenerationTimeout bounds the backend call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLocation sets the timezone that defines "today" for cadence updates.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides report id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(reports domain.ReportRepository, settings domain.SettingsRepository, collector Collector, generator generation.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reports:   reports,
		settings:  settings,
		collector: collector,
		generator: generator,
		timeout:   DefaultGenerationTimeout,
		loc:       time.UTC,
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate runs one orchestration and returns the settled report. It never returns an
// error: failures are recorded on the report. If the initial pending write fails the
// returned report is failed and was not persisted.
func (o *Orchestrator) Generate(ctx context.Context, userID string, window domain.ReportingWindow, kind domain.ReportKind) (result *domain.ProgressReport) {
	started := time.Now()
	logger := o.logger.With(zap.String("user_id", userID), zap.Stringer("window", window), zap.String("kind", string(kind)))

	report := domain.NewPendingReport(o.newID(), userID, window, kind, o.now())
	result = report
	if err := o.reports.Create(ctx, report); err != nil {
		logger.Error("persist pending report", zap.Error(err))
		_ = report.MarkFailed(domain.Failure{Kind: domain.FailureInternal, Message: fmt.Sprintf("persist pending report: %v", err)}, o.now())
		o.record(report, started)
		return report
	}
	logger = logger.With(zap.String("report_id", report.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("orchestration panicked", zap.Any("panic", r))
			result = o.fail(ctx, logger, report, domain.Failure{Kind: domain.FailureInternal, Message: fmt.Sprintf("internal error: %v", r)})
		}
		o.record(result, started)
	}()

	summary := o.collector.Collect(ctx, userID, window)
	if !summary.HasAnyData() {
		logger.Info("insufficient activity data for report")
		return o.fail(ctx, logger, report, domain.Failure{Kind: domain.FailureInsufficientData, Message: domain.InsufficientDataMessage})
	}

	set := insights.Analyze(summary, window.Days())
	req := generation.BuildRequest(summary, set, kind)

	resp, err := o.callBackend(ctx, req)
	if err != nil {
		logger.Warn("text generation failed", zap.Error(err))
		return o.fail(ctx, logger, report, classify(err))
	}

	sections, structured := generation.ParseSections(resp.Text)
	if !structured {
		logger.Warn("generated reply has no recognised sections; storing as summary")
		observability.RecordUnstructuredReply()
	}

	generated := *report
	if err := generated.MarkGenerated(sections, o.now()); err != nil {
		return o.fail(ctx, logger, report, domain.Failure{Kind: domain.FailureInternal, Message: err.Error()})
	}
	if err := o.reports.Save(context.WithoutCancel(ctx), &generated); err != nil {
		logger.Error("persist generated report", zap.Error(err))
		return o.fail(ctx, logger, report, domain.Failure{Kind: domain.FailureInternal, Message: fmt.Sprintf("persist generated report: %v", err)})
	}
	observability.RecordReportGenerated(generated.UpdatedAt)
	logger.Info("report generated", zap.Int("prompt_tokens", resp.PromptTokens), zap.Int("completion_tokens", resp.CompletionTokens))

	o.advanceCadence(ctx, logger, userID)
	return &generated
}

func (o *Orchestrator) callBackend(ctx context.Context, req generation.Request) (generation.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.generator.Generate(ctx, req)
}

func (o *Orchestrator) advanceCadence(ctx context.Context, logger *zap.Logger, userID string) {
	ctx = context.WithoutCancel(ctx)
	settings, err := o.settings.Get(ctx, userID)
	if err != nil {
		logger.Error("load cadence settings", zap.Error(err))
		return
	}
	if settings == nil {
		return
	}
	settings.RecordGeneration(o.now(), o.loc)
	if err := o.settings.Upsert(ctx, *settings); err != nil {
		logger.Error("update cadence settings", zap.Error(err))
	}
}

// fail settles report as failed and persists it. The save runs even if ctx is done so
// the record never stays pending.
func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, report *domain.ProgressReport, failure domain.Failure) *domain.ProgressReport {
	if err := report.MarkFailed(failure, o.now()); err != nil {
		logger.Error("mark report failed", zap.Error(err))
		return report
	}
	if err := o.reports.Save(context.WithoutCancel(ctx), report); err != nil {
		logger.Error("persist failed report", zap.Error(err))
	}
	return report
}

func (o *Orchestrator) record(report *domain.ProgressReport, started time.Time) {
	kind := domain.MatchStatus(report,
		func() string { return "" },
		func(domain.Sections) string { return "" },
		func(f domain.Failure) string { return string(f.Kind) },
	)
	observability.RecordReportOutcome(report.Status.String(), kind, time.Since(started))
}

func classify(err error) domain.Failure {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Failure{Kind: domain.FailureTimeout, Message: fmt.Sprintf("text generation timed out: %v", err)}
	case errors.Is(err, generation.ErrBackendUnavailable), errors.Is(err, generation.ErrEmptyReply):
		return domain.Failure{Kind: domain.FailureBackend, Message: err.Error()}
	default:
		return domain.Failure{Kind: domain.FailureInternal, Message: err.Error()}
	}
}
