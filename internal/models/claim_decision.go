package models

// DailyCounters are the watch counters that apply to Date.
type DailyCounters struct {
	Date          string
	WatchesToday  int
	EarningsToday int64
}

// ClaimCredit carries the writes of a successful claim.
type ClaimCredit struct {
	Amount     int64
	Daily      DailyCounters // counters after this claim
	VideoIndex *int
}

// ClaimDecision is the result of evaluating one transaction attempt.
// Exactly one of Skip, Credit or a non-empty Reason is set.
type ClaimDecision struct {
	Skip   bool
	Reason string
	Credit *ClaimCredit
}

// DecideFunc is evaluated by the store inside the transaction against rows
// read in that same attempt. user is nil when the user does not exist.
// It may run more than once per claim and must not have side effects.
type DecideFunc func(claim *Claim, user *User) ClaimDecision

type ClaimSnapshot struct {
	NewBalance         int64 `json:"newBalance"`
	VideosWatchedToday int   `json:"videosWatchedToday"`
	EarningsToday      int64 `json:"earningsToday"`
}

// ClaimOutcome is what processing a claim event ended in.
type ClaimOutcome struct {
	ClaimID   string         `json:"claimId"`
	UID       string         `json:"uid"`
	Processed bool           `json:"processed"`
	Reason    string         `json:"reason,omitempty"`
	Duplicate bool           `json:"-"`
	Snapshot  *ClaimSnapshot `json:"snapshot,omitempty"`
}
