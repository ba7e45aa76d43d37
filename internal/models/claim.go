package models

import (
	"time"
)

// Claim is one attempted reward redemption. Input fields are written by the
// intake path; outcome fields are written once by the claim processor.
type Claim struct {
	ID           string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UID          string `gorm:"column:uid;type:varchar(128);index" json:"uid"`
	RewardAmount string `gorm:"column:reward_amount;type:varchar(64)" json:"rewardAmount"` // raw submitted value
	VideoIndex   *int   `gorm:"column:video_index" json:"videoIndex"`

	Processed   *bool      `gorm:"column:processed;index" json:"processed"` // nil until terminal
	Reason      *string    `gorm:"column:reason;type:varchar(50)" json:"reason"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processedAt,omitempty"`

	// Display snapshot written after commit (best effort)
	NewBalance         *int64 `gorm:"column:new_balance" json:"newBalance,omitempty"`
	VideosWatchedToday *int   `gorm:"column:videos_watched_today" json:"videosWatchedToday,omitempty"`
	EarningsToday      *int64 `gorm:"column:earnings_today" json:"earningsToday,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// Rejection reasons written to Claim.Reason
const (
	ReasonUIDMissing          = "uid_missing"
	ReasonInvalidRewardAmount = "invalid_reward_amount"
	ReasonNotMonday           = "not_monday"
	ReasonUserNotFound        = "user_not_found"
	ReasonLimitReached        = "limit_reached"

	// ReasonAlreadyProcessed is reported for redelivered claims and never stored.
	ReasonAlreadyProcessed = "already_processed"
)

// IsTerminal reports whether the claim already reached processed or rejected.
func (c *Claim) IsTerminal() bool {
	return c.Processed != nil
}

// Event returns the trigger payload for this claim record.
func (c *Claim) Event() ClaimEvent {
	return ClaimEvent{
		ClaimID:      c.ID,
		UID:          c.UID,
		RewardAmount: c.RewardAmount,
		VideoIndex:   c.VideoIndex,
	}
}

func (Claim) TableName() string {
	return "tiktok_claims"
}

// ClaimEvent is delivered, at least once, for every newly created claim.
type ClaimEvent struct {
	ClaimID      string
	UID          string
	RewardAmount string
	VideoIndex   *int
}
