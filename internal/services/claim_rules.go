package services

import (
	"time"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/utils"
)

const (
	DefaultRewardAmount int64 = 250
	DefaultDailyCap           = 2
)

// ClaimRules holds the reward constant, the daily cap and the calendar the
// Monday gate and day boundaries are evaluated in.
type ClaimRules struct {
	RewardAmount int64
	DailyCap     int
	Calendar     *utils.Calendar
}

// NewClaimRules returns the fixed reward and cap evaluated in calendar.
func NewClaimRules(calendar *utils.Calendar) ClaimRules {
	return ClaimRules{
		RewardAmount: DefaultRewardAmount,
		DailyCap:     DefaultDailyCap,
		Calendar:     calendar,
	}
}

func DefaultClaimRules() ClaimRules {
	return NewClaimRules(utils.MustCalendar(utils.DefaultTimezone))
}

// Validate returns the rejection reason for event at now, or "" when the
// claim may go on to the transaction. Checks run in a fixed order.
func (r ClaimRules) Validate(event models.ClaimEvent, now time.Time) string {
	if event.UID == "" {
		return models.ReasonUIDMissing
	}

	amount, ok := utils.ParseLooseNumber(event.RewardAmount)
	if !ok || amount != float64(r.RewardAmount) {
		return models.ReasonInvalidRewardAmount
	}

	if !r.Calendar.IsMonday(now) {
		return models.ReasonNotMonday
	}

	return ""
}

// EffectiveDaily returns the counters that apply to today. Counters stored for
// another day count as zero.
func EffectiveDaily(user *models.User, today string) models.DailyCounters {
	if user.LastTikTokWatchDate == nil || *user.LastTikTokWatchDate != today {
		return models.DailyCounters{Date: today}
	}
	return models.DailyCounters{
		Date:          today,
		WatchesToday:  user.TikTokWatchesToday,
		EarningsToday: user.TikTokEarningsToday,
	}
}

// WithWatch returns the counters after one more credited watch.
func WithWatch(daily models.DailyCounters, amount int64) models.DailyCounters {
	daily.WatchesToday++
	daily.EarningsToday += amount
	return daily
}

// Decide builds the transaction body for a claim evaluated on today.
func (r ClaimRules) Decide(today string, videoIndex *int) models.DecideFunc {
	return func(claim *models.Claim, user *models.User) models.ClaimDecision {
		if claim.IsTerminal() {
			return models.ClaimDecision{Skip: true}
		}
		if user == nil {
			return models.ClaimDecision{Reason: models.ReasonUserNotFound}
		}

		daily := EffectiveDaily(user, today)
		if daily.WatchesToday >= r.DailyCap {
			return models.ClaimDecision{Reason: models.ReasonLimitReached}
		}

		return models.ClaimDecision{
			Credit: &models.ClaimCredit{
				Amount:     r.RewardAmount,
				Daily:      WithWatch(daily, r.RewardAmount),
				VideoIndex: videoIndex,
			},
		}
	}
}
