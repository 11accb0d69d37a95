package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"example.com/progressreports/internal/domain"
)

// DefaultKeep is the number of most recent reports retained per user.
const DefaultKeep = 5

// Retention deletes all but the newest reports of every user.
type Retention struct {
	reports domain.ReportRepository
	logger  *zap.Logger
}

// NewRetention constructs the weekly retention job.
func NewRetention(reports domain.ReportRepository, opts ...Option) *Retention {
	o := buildOptions(opts)
	return &Retention{reports: reports, logger: o.logger}
}

// Run keeps the keep most recently created reports per user and hard-deletes the rest.
// A negative keep is treated as DefaultKeep.
func (r *Retention) Run(ctx context.Context, keep int) Summary {
	if keep < 0 {
		keep = DefaultKeep
	}
	var summary Summary

	users, err := r.reports.ListUsersWithReports(ctx)
	if err != nil {
		r.logger.Error("list users with reports", zap.Error(err))
		summary.fail(fmt.Errorf("list users: %w", err))
		recordRun("retention", summary)
		return summary
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			summary.fail(ctx.Err())
			break
		}
		summary.Processed++
		removed, err := r.prune(ctx, userID, keep)
		if err != nil {
			r.logger.Error("prune reports", zap.String("user_id", userID), zap.Error(err))
			summary.fail(fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		summary.Succeeded++
		summary.Removed += removed
	}

	r.logger.Info("retention finished",
		zap.Int("users", summary.Processed),
		zap.Int("removed", summary.Removed),
		zap.Int("failed", summary.Failed),
		zap.Int("keep", keep))
	recordRun("retention", summary)
	recordPruned(summary.Removed)
	return summary
}

func (r *Retention) prune(ctx context.Context, userID string, keep int) (removed int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.reports.PruneUser(ctx, userID, keep)
}
