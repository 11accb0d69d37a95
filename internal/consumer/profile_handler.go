package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/events"
	"example.com/progressreports/internal/nutrition"
)

// ProfileStore reads profiles and writes the derived goals.
type ProfileStore interface {
	Profile(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpsertGoals(ctx context.Context, goals domain.NutritionGoals) error
}

// ProfileHandler recomputes nutrition goals on profile.updated.
type ProfileHandler struct {
	store  ProfileStore
	logger *zap.Logger
	now    func() time.Time
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(store ProfileStore, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{store: store, logger: logger, now: time.Now}
}

// Handle loads the current profile and upserts goals. Profiles that are missing or
// incomplete are acknowledged; storage errors are returned.
func (h *ProfileHandler) Handle(ctx context.Context, msg Message) error {
	var event events.ProfileUpdated
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.UserID == "" {
		h.logger.Error("invalid profile event", zap.Int64("offset", msg.Offset), zap.Error(err))
		recordGoalsUpdate("invalid")
		return nil
	}

	profile, err := h.store.Profile(ctx, event.UserID)
	if err != nil {
		recordGoalsUpdate("error")
		return fmt.Errorf("load profile %s: %w", event.UserID, err)
	}
	if profile == nil {
		h.logger.Info("profile not found", zap.String("user_id", event.UserID))
		recordGoalsUpdate("skipped")
		return nil
	}

	goals, err := nutrition.GoalsFor(*profile, h.now())
	if errors.Is(err, nutrition.ErrIncompleteProfile) {
		h.logger.Info("profile incomplete, goals unchanged", zap.String("user_id", event.UserID), zap.Error(err))
		recordGoalsUpdate("skipped")
		return nil
	}
	if err != nil {
		recordGoalsUpdate("error")
		return err
	}

	if err := h.store.UpsertGoals(ctx, goals); err != nil {
		recordGoalsUpdate("error")
		return fmt.Errorf("upsert goals %s: %w", event.UserID, err)
	}
	h.logger.Info("nutrition goals recalculated",
		zap.String("user_id", event.UserID),
		zap.Float64("calories", goals.Calories),
		zap.Float64("protein_g", goals.ProteinG))
	recordGoalsUpdate("updated")
	return nil
}
