package models

import (
	"time"
)

// ClaimHistoryEntry is the append-only audit record of one credited claim.
type ClaimHistoryEntry struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID       string    `gorm:"column:user_id;type:varchar(128);not null;index" json:"userId"`
	ClaimID      string    `gorm:"column:claim_id;type:varchar(64);not null;uniqueIndex" json:"claimId"`
	RewardAmount int64     `gorm:"column:reward_amount;not null" json:"rewardAmount"`
	VideoIndex   *int      `gorm:"column:video_index" json:"videoIndex"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index" json:"createdAt"`
}

func (ClaimHistoryEntry) TableName() string {
	return "tiktok_claim_history"
}
