package repositories

import (
	"context"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/errors"
	"github.com/mroshb/tiktok_claims/pkg/logger"
	"github.com/mroshb/tiktok_claims/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimRepository struct {
	db          *gorm.DB
	maxAttempts int
}

func NewClaimRepository(db *gorm.DB, maxAttempts int) *ClaimRepository {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &ClaimRepository{db: db, maxAttempts: maxAttempts}
}

// CreateClaim stores a new unprocessed claim, assigning its ID when empty.
func (r *ClaimRepository) CreateClaim(ctx context.Context, claim *models.Claim) error {
	if claim.ID == "" {
		claim.ID = utils.NewID()
	}
	claim.Processed = nil
	claim.Reason = nil

	if err := r.db.WithContext(ctx).Create(claim).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create claim")
	}
	return nil
}

// GetClaim retrieves a claim by ID
func (r *ClaimRepository) GetClaim(ctx context.Context, id string) (*models.Claim, error) {
	var claim models.Claim
	result := r.db.WithContext(ctx).First(&claim, "id = ?", id)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "claim not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get claim")
	}

	return &claim, nil
}

// ListPending returns the oldest claims that have not reached a terminal state.
func (r *ClaimRepository) ListPending(ctx context.Context, limit int) ([]models.Claim, error) {
	var claims []models.Claim
	result := r.db.WithContext(ctx).
		Where("processed IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&claims)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list pending claims")
	}
	return claims, nil
}

// RejectClaim marks an unprocessed claim rejected. It reports false when the
// claim was already terminal and nothing was written.
func (r *ClaimRepository) RejectClaim(ctx context.Context, id, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Claim{}).
		Where("id = ? AND processed IS NULL", id).
		Updates(rejectionUpdates(reason))

	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to reject claim")
	}
	return result.RowsAffected > 0, nil
}

// SaveSnapshot writes the post-commit display fields onto a claim.
func (r *ClaimRepository) SaveSnapshot(ctx context.Context, id string, snapshot models.ClaimSnapshot) error {
	result := r.db.WithContext(ctx).
		Model(&models.Claim{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"new_balance":          snapshot.NewBalance,
			"videos_watched_today": snapshot.VideosWatchedToday,
			"earnings_today":       snapshot.EarningsToday,
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to save claim snapshot")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "claim not found")
	}
	return nil
}

// ExecuteClaim runs decide inside a transaction holding row locks on the claim
// and the user, then applies the decision. The whole attempt, reads included,
// is repeated on serialization failures and deadlocks.
func (r *ClaimRepository) ExecuteClaim(ctx context.Context, claimID, uid string, decide models.DecideFunc) (models.ClaimDecision, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		var decision models.ClaimDecision

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			decision, err = executeClaimAttempt(tx, claimID, uid, decide)
			return err
		})
		if err == nil {
			return decision, nil
		}
		if !isRetryableTxError(err) {
			return models.ClaimDecision{}, err
		}

		lastErr = err
		logger.Warn("Claim transaction conflict, retrying", "claim_id", claimID, "uid", uid, "attempt", attempt, "error", err)
	}

	return models.ClaimDecision{}, errors.Wrap(lastErr, errors.ErrCodeConflict, "claim transaction retries exhausted")
}

func executeClaimAttempt(tx *gorm.DB, claimID, uid string, decide models.DecideFunc) (models.ClaimDecision, error) {
	// Lock order is always claim then user.
	var claim models.Claim
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&claim, "id = ?", claimID)
	if result.Error == gorm.ErrRecordNotFound {
		return models.ClaimDecision{}, errors.New(errors.ErrCodeNotFound, "claim not found")
	}
	if result.Error != nil {
		return models.ClaimDecision{}, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to lock claim")
	}

	var user *models.User
	var found models.User
	result = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&found, "id = ?", uid)
	switch {
	case result.Error == gorm.ErrRecordNotFound:
		user = nil
	case result.Error != nil:
		return models.ClaimDecision{}, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to lock user")
	default:
		user = &found
	}

	decision := decide(&claim, user)

	switch {
	case decision.Skip:
		return decision, nil
	case decision.Credit == nil:
		if err := tx.Model(&models.Claim{}).Where("id = ?", claimID).Updates(rejectionUpdates(decision.Reason)).Error; err != nil {
			return models.ClaimDecision{}, errors.Wrap(err, errors.ErrCodeInternalError, "failed to mark claim rejected")
		}
		return decision, nil
	}

	credit := decision.Credit

	if err := tx.Model(&models.User{}).Where("id = ?", uid).Updates(creditUpdates(credit)).Error; err != nil {
		return models.ClaimDecision{}, errors.Wrap(err, errors.ErrCodeInternalError, "failed to credit user")
	}

	if err := tx.Model(&models.ClaimHistoryEntry{}).Create(historyValues(claimID, uid, credit)).Error; err != nil {
		return models.ClaimDecision{}, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create history entry")
	}

	if err := tx.Model(&models.Claim{}).Where("id = ?", claimID).Updates(processedUpdates()).Error; err != nil {
		return models.ClaimDecision{}, errors.Wrap(err, errors.ErrCodeInternalError, "failed to mark claim processed")
	}

	return decision, nil
}

// CURRENT_TIMESTAMP is the transaction start time in Postgres, so every row
// written by one claim transaction carries the same server timestamp.
var serverNow = gorm.Expr("CURRENT_TIMESTAMP")

func rejectionUpdates(reason string) map[string]interface{} {
	return map[string]interface{}{
		"processed": false,
		"reason":    reason,
	}
}

// creditUpdates increments the balances relative to the stored values and
// overwrites the daily counters with the already-reset values.
func creditUpdates(credit *models.ClaimCredit) map[string]interface{} {
	return map[string]interface{}{
		"solde":                   gorm.Expr("solde + ?", credit.Amount),
		"tiktok_gains":            gorm.Expr("tiktok_gains + ?", credit.Amount),
		"tik_tok_watches_today":   credit.Daily.WatchesToday,
		"tik_tok_earnings_today":  credit.Daily.EarningsToday,
		"last_tik_tok_watch_date": credit.Daily.Date,
	}
}

func historyValues(claimID, uid string, credit *models.ClaimCredit) map[string]interface{} {
	return map[string]interface{}{
		"id":            utils.NewID(),
		"user_id":       uid,
		"claim_id":      claimID,
		"reward_amount": credit.Amount,
		"video_index":   credit.VideoIndex,
		"created_at":    serverNow,
	}
}

func processedUpdates() map[string]interface{} {
	return map[string]interface{}{
		"processed":    true,
		"processed_at": serverNow,
		"reason":       nil,
	}
}
