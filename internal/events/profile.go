package events

import "time"

// ProfileUpdated is emitted by the account service whenever a profile field that drives nutrition goals changes.
type ProfileUpdated struct {
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
