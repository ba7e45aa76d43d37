package repositories

import (
	"context"
	"time"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/errors"
	"gorm.io/gorm"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListBetween returns history entries with from <= created_at < to, oldest first.
func (r *HistoryRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.ClaimHistoryEntry, error) {
	var entries []models.ClaimHistoryEntry
	result := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&entries)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list claim history")
	}
	return entries, nil
}

// ListByUser retrieves a user's most recent history entries
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ClaimHistoryEntry, error) {
	var entries []models.ClaimHistoryEntry
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get claim history")
	}
	return entries, nil
}
