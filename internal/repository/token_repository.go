package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/timekeeper-hq/authcore/internal/domain"
	"github.com/timekeeper-hq/authcore/internal/observability"
)

var (
	ErrTokenNotFound    = errors.New("refresh token not found")
	ErrTokenAlreadyUsed = errors.New("refresh token already used")
)

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// ConsumeByHash marks the live token matching hash as used and returns
	// it. Exactly one of two racing callers wins; the loser gets
	// ErrTokenAlreadyUsed when the row exists but was consumed, or
	// ErrTokenNotFound when there is no live row at all.
	ConsumeByHash(ctx context.Context, hash string, now time.Time) (*domain.RefreshToken, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormRefreshTokenRepository struct{ db *gorm.DB }

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

func (r *GormRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	err := r.db.WithContext(ctx).Create(token).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "create", "error")
		return wrapStoreErr("create refresh token", err)
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "create", "success")
	return nil
}

func (r *GormRefreshTokenRepository) ConsumeByHash(ctx context.Context, hash string, now time.Time) (*domain.RefreshToken, error) {
	// Single conditional update: the used_at IS NULL guard is the whole
	// at-most-once story. RowsAffected == 1 means this caller won the race.
	res := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, now).
		Update("used_at", now.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "consume_by_hash", "error")
		return nil, wrapStoreErr("consume refresh token", res.Error)
	}
	if res.RowsAffected == 0 {
		var stale domain.RefreshToken
		err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&stale).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				observability.RecordRepositoryOperation(ctx, "refresh_token", "consume_by_hash", "not_found")
				return nil, ErrTokenNotFound
			}
			observability.RecordRepositoryOperation(ctx, "refresh_token", "consume_by_hash", "error")
			return nil, wrapStoreErr("consume refresh token", err)
		}
		if stale.UsedAt != nil {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "consume_by_hash", "reuse")
			return &stale, ErrTokenAlreadyUsed
		}
		// Row exists but expired.
		observability.RecordRepositoryOperation(ctx, "refresh_token", "consume_by_hash", "not_found")
		return nil, ErrTokenNotFound
	}

	var token domain.RefreshToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "consume_by_hash", "error")
		return nil, wrapStoreErr("consume refresh token", err)
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "consume_by_hash", "success")
	return &token, nil
}

func (r *GormRefreshTokenRepository) DeleteByID(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.RefreshToken{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_by_id", "error")
		return wrapStoreErr("delete refresh token", err)
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_by_id", "success")
	return nil
}

func (r *GormRefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.RefreshToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_all_for_user", "error")
		return res.RowsAffected, wrapStoreErr("delete refresh tokens for user", res.Error)
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_all_for_user", "success")
	return res.RowsAffected, nil
}

func (r *GormRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.RefreshToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_expired", "error")
		return res.RowsAffected, wrapStoreErr("delete expired refresh tokens", res.Error)
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_expired", "success")
	return res.RowsAffected, nil
}
