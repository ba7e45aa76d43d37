package services

import (
	"context"
	"time"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/errors"
	"github.com/mroshb/tiktok_claims/pkg/logger"
)

// ClaimStore is the claim side of the document store.
type ClaimStore interface {
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	RejectClaim(ctx context.Context, id, reason string) (bool, error)
	ExecuteClaim(ctx context.Context, claimID, uid string, decide models.DecideFunc) (models.ClaimDecision, error)
	SaveSnapshot(ctx context.Context, id string, snapshot models.ClaimSnapshot) error
}

type UserReader interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Notifier is told about every claim that reached a terminal state.
type Notifier interface {
	ClaimSettled(ctx context.Context, outcome *models.ClaimOutcome) error
}

type ClaimProcessor struct {
	claims   ClaimStore
	users    UserReader
	rules    ClaimRules
	notifier Notifier
	now      func() time.Time
}

type ProcessorOption func(*ClaimProcessor)

func WithNotifier(n Notifier) ProcessorOption {
	return func(p *ClaimProcessor) {
		p.notifier = n
	}
}

// WithClock replaces time.Now, mainly for tests pinned to a weekday.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *ClaimProcessor) {
		p.now = now
	}
}

func NewClaimProcessor(claims ClaimStore, users UserReader, rules ClaimRules, opts ...ProcessorOption) *ClaimProcessor {
	p := &ClaimProcessor{
		claims: claims,
		users:  users,
		rules:  rules,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process drives one claim event to a terminal state. Business rejections are
// reported through the outcome with a nil error; an error means the claim may
// still be unprocessed and the event can be delivered again.
func (p *ClaimProcessor) Process(ctx context.Context, event models.ClaimEvent) (*models.ClaimOutcome, error) {
	log := logger.With("claim_id", event.ClaimID, "uid", event.UID)
	now := p.now()

	// Redeliveries usually stop here; the transaction checks again under lock.
	claim, err := p.claims.GetClaim(ctx, event.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim.IsTerminal() {
		log.Infow("Claim already settled, ignoring event")
		return duplicateOutcome(claim), nil
	}

	if reason := p.rules.Validate(event, now); reason != "" {
		return p.reject(ctx, event, reason)
	}

	today := p.rules.Calendar.DateString(now)
	decision, err := p.claims.ExecuteClaim(ctx, event.ClaimID, event.UID, p.rules.Decide(today, event.VideoIndex))
	if err != nil {
		log.Errorw("Claim transaction failed", "error", err)
		return nil, err
	}

	outcome := &models.ClaimOutcome{ClaimID: event.ClaimID, UID: event.UID}
	switch {
	case decision.Skip:
		log.Infow("Claim settled concurrently, nothing written")
		outcome.Duplicate = true
		outcome.Reason = models.ReasonAlreadyProcessed
		return outcome, nil
	case decision.Credit == nil:
		log.Warnw("Claim rejected", "reason", decision.Reason)
		outcome.Reason = decision.Reason
	default:
		outcome.Processed = true
		outcome.Snapshot = p.enrich(ctx, event)
		log.Infow("Claim processed successfully", "reward", decision.Credit.Amount, "watches_today", decision.Credit.Daily.WatchesToday)
	}

	p.notify(ctx, outcome)
	return outcome, nil
}

func (p *ClaimProcessor) reject(ctx context.Context, event models.ClaimEvent, reason string) (*models.ClaimOutcome, error) {
	applied, err := p.claims.RejectClaim(ctx, event.ClaimID, reason)
	if err != nil {
		return nil, err
	}

	outcome := &models.ClaimOutcome{ClaimID: event.ClaimID, UID: event.UID, Reason: reason}
	if !applied {
		outcome.Duplicate = true
		outcome.Reason = models.ReasonAlreadyProcessed
		return outcome, nil
	}

	logger.Warn("Claim rejected", "claim_id", event.ClaimID, "uid", event.UID, "reason", reason)
	p.notify(ctx, outcome)
	return outcome, nil
}

// enrich copies the committed user state onto the claim for display. A failure
// leaves the claim processed without a snapshot.
func (p *ClaimProcessor) enrich(ctx context.Context, event models.ClaimEvent) *models.ClaimSnapshot {
	user, err := p.users.GetUserByID(ctx, event.UID)
	if err != nil {
		logger.Error("Failed to read user after commit", "claim_id", event.ClaimID, "uid", event.UID, "error", err)
		return nil
	}

	snapshot := models.ClaimSnapshot{
		NewBalance:         user.Solde,
		VideosWatchedToday: user.TikTokWatchesToday,
		EarningsToday:      user.TikTokEarningsToday,
	}
	if err := p.claims.SaveSnapshot(ctx, event.ClaimID, snapshot); err != nil {
		logger.Error("Failed to save claim snapshot", "claim_id", event.ClaimID, "uid", event.UID, "error", err)
		return nil
	}
	return &snapshot
}

func (p *ClaimProcessor) notify(ctx context.Context, outcome *models.ClaimOutcome) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.ClaimSettled(ctx, outcome); err != nil {
		logger.Warn("Failed to publish claim outcome", "claim_id", outcome.ClaimID, "error", err)
	}
}

func duplicateOutcome(claim *models.Claim) *models.ClaimOutcome {
	outcome := &models.ClaimOutcome{
		ClaimID:   claim.ID,
		UID:       claim.UID,
		Duplicate: true,
		Reason:    models.ReasonAlreadyProcessed,
	}
	if claim.Processed != nil {
		outcome.Processed = *claim.Processed
	}
	return outcome
}

// IsRetryable reports whether a Process error leaves the claim worth redelivering.
func IsRetryable(err error) bool {
	return err != nil && !errors.HasCode(err, errors.ErrCodeNotFound)
}
