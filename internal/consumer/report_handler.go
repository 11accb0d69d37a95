package consumer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/events"
)

// ReportGenerator runs one orchestration and returns the settled report.
type ReportGenerator interface {
	Generate(ctx context.Context, userID string, window domain.ReportingWindow, kind domain.ReportKind) *domain.ProgressReport
}

// RetryPolicy bounds how often a transiently failed job is run again.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is three attempts, doubling from two seconds, never waiting more than a minute.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}

// Delay is the wait before the attempt following attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(1<<uint(attempt-1)) * p.BaseDelay
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// ReportJobHandler executes report.requested jobs.
type ReportJobHandler struct {
	generator ReportGenerator
	policy    RetryPolicy
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// NewReportJobHandler constructs a handler. A zero MaxAttempts means a single attempt.
func NewReportJobHandler(generator ReportGenerator, policy RetryPolicy, logger *zap.Logger) *ReportJobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return &ReportJobHandler{
		generator: generator,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Handle runs the job, retrying backend and timeout failures with exponential backoff. Every
// attempt is a separate orchestration and leaves its own report behind. Malformed and expired
// jobs are acknowledged without running. An error is returned only when ctx ends mid-backoff,
// so the job is redelivered.
func (h *ReportJobHandler) Handle(ctx context.Context, msg Message) error {
	var payload events.ReportRequested
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.logger.Error("undecodable report job", zap.Int64("offset", msg.Offset), zap.Error(err))
		recordJobOutcome("invalid")
		return nil
	}
	job, err := payload.Job()
	if err != nil {
		h.logger.Error("invalid report job", zap.Int64("offset", msg.Offset), zap.Error(err))
		recordJobOutcome("invalid")
		return nil
	}

	logger := h.logger.With(
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.String("trigger", string(job.Trigger)),
		zap.Stringer("window", job.Window))

	if job.Expired(h.now()) {
		logger.Warn("dropping expired report job", zap.Timep("expires_at", job.ExpiresAt))
		recordJobOutcome("expired")
		return nil
	}

	for attempt := 1; ; attempt++ {
		report := h.generator.Generate(ctx, job.UserID, job.Window, job.Kind)
		retry := domain.MatchStatus(report,
			func() bool { return false },
			func(domain.Sections) bool {
				logger.Info("report generated", zap.String("report_id", report.ID), zap.Int("attempt", attempt))
				recordJobOutcome("generated")
				return false
			},
			func(f domain.Failure) bool {
				if !f.Kind.Retryable() || attempt >= h.policy.MaxAttempts {
					logger.Warn("report failed",
						zap.String("report_id", report.ID),
						zap.String("failure_kind", string(f.Kind)),
						zap.Int("attempt", attempt))
					recordJobOutcome("failed")
					return false
				}
				return true
			},
		)
		if !retry {
			return nil
		}

		delay := h.policy.Delay(attempt)
		logger.Info("retrying report job", zap.Int("attempt", attempt), zap.Duration("backoff", delay))
		jobRetryCounter.Inc()
		if err := h.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
