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
	ErrResetNotFound = errors.New("password reset token not found")
	ErrResetExpired  = errors.New("password reset token expired")
)

type PasswordResetRepository interface {
	Create(ctx context.Context, reset *domain.PasswordReset) error
	// Consume marks the live reset matching hash as used and returns it.
	// Concurrent consumers of the same token get exactly one success.
	Consume(ctx context.Context, hash string, now time.Time) (*domain.PasswordReset, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormPasswordResetRepository struct{ db *gorm.DB }

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &GormPasswordResetRepository{db: db}
}

func (r *GormPasswordResetRepository) Create(ctx context.Context, reset *domain.PasswordReset) error {
	err := r.db.WithContext(ctx).Create(reset).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "password_reset", "create", "error")
		return wrapStoreErr("create password reset", err)
	}
	observability.RecordRepositoryOperation(ctx, "password_reset", "create", "success")
	return nil
}

func (r *GormPasswordResetRepository) Consume(ctx context.Context, hash string, now time.Time) (*domain.PasswordReset, error) {
	res := r.db.WithContext(ctx).Model(&domain.PasswordReset{}).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, now).
		Update("used_at", now.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "password_reset", "consume", "error")
		return nil, wrapStoreErr("consume password reset", res.Error)
	}
	if res.RowsAffected == 0 {
		var stale domain.PasswordReset
		err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&stale).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				observability.RecordRepositoryOperation(ctx, "password_reset", "consume", "not_found")
				return nil, ErrResetNotFound
			}
			observability.RecordRepositoryOperation(ctx, "password_reset", "consume", "error")
			return nil, wrapStoreErr("consume password reset", err)
		}
		if stale.UsedAt != nil {
			observability.RecordRepositoryOperation(ctx, "password_reset", "consume", "already_used")
			return nil, ErrResetNotFound
		}
		observability.RecordRepositoryOperation(ctx, "password_reset", "consume", "expired")
		return nil, ErrResetExpired
	}

	var reset domain.PasswordReset
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&reset).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "password_reset", "consume", "error")
		return nil, wrapStoreErr("consume password reset", err)
	}
	observability.RecordRepositoryOperation(ctx, "password_reset", "consume", "success")
	return &reset, nil
}

func (r *GormPasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.PasswordReset{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "password_reset", "delete_expired", "error")
		return res.RowsAffected, wrapStoreErr("delete expired password resets", res.Error)
	}
	observability.RecordRepositoryOperation(ctx, "password_reset", "delete_expired", "success")
	return res.RowsAffected, nil
}
