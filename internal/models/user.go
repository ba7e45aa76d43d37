package models

import (
	"time"
)

// User holds the balance and daily watch counters of an application user.
// Only the reward fields below are mutated by claim processing.
type User struct {
	ID                  string    `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Solde               int64     `gorm:"column:solde;not null;default:0" json:"solde"`
	TiktokGains         int64     `gorm:"column:tiktok_gains;not null;default:0" json:"tiktokGains"`
	TikTokWatchesToday  int       `gorm:"column:tik_tok_watches_today;not null;default:0" json:"tikTokWatchesToday"`
	TikTokEarningsToday int64     `gorm:"column:tik_tok_earnings_today;not null;default:0" json:"tikTokEarningsToday"`
	LastTikTokWatchDate *string   `gorm:"column:last_tik_tok_watch_date;type:varchar(10)" json:"lastTikTokWatchDate"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
