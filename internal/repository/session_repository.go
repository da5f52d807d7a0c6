package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/timekeeper-hq/authcore/internal/domain"
	"github.com/timekeeper-hq/authcore/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionListOrder = "last_seen_at DESC, created_at DESC, id DESC"

type SessionRepository interface {
	Create(ctx context.Context, s *domain.ActiveSession) error
	FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (*domain.ActiveSession, error)
	FindByAccessJTI(ctx context.Context, jti string) (*domain.ActiveSession, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ActiveSession, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	// OldestByUser returns the least-recently-seen session, the eviction
	// candidate when the concurrency cap is hit.
	OldestByUser(ctx context.Context, userID string) (*domain.ActiveSession, error)
	Touch(ctx context.Context, jti string, at time.Time) error
	DeleteByRefreshTokenID(ctx context.Context, refreshTokenID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.ActiveSession) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return wrapStoreErr("create session", err)
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (*domain.ActiveSession, error) {
	return r.findOne(ctx, "find_by_refresh_token_id", "refresh_token_id = ?", refreshTokenID)
}

func (r *GormSessionRepository) FindByAccessJTI(ctx context.Context, jti string) (*domain.ActiveSession, error) {
	return r.findOne(ctx, "find_by_access_jti", "access_jti = ?", jti)
}

func (r *GormSessionRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.ActiveSession, error) {
	var s domain.ActiveSession
	err := r.db.WithContext(ctx).Where(query, arg).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", op, "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", op, "error")
		return nil, wrapStoreErr("find session", err)
	}
	observability.RecordRepositoryOperation(ctx, "session", op, "success")
	return &s, nil
}

func (r *GormSessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.ActiveSession, error) {
	var sessions []domain.ActiveSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(sessionListOrder).
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_by_user", "error")
		return nil, wrapStoreErr("list sessions", err)
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_by_user", "success")
	return sessions, nil
}

func (r *GormSessionRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ActiveSession{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "count_by_user", "error")
		return 0, wrapStoreErr("count sessions", err)
	}
	observability.RecordRepositoryOperation(ctx, "session", "count_by_user", "success")
	return count, nil
}

func (r *GormSessionRepository) OldestByUser(ctx context.Context, userID string) (*domain.ActiveSession, error) {
	var s domain.ActiveSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_seen_at ASC, created_at ASC, id ASC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "oldest_by_user", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "oldest_by_user", "error")
		return nil, wrapStoreErr("find oldest session", err)
	}
	observability.RecordRepositoryOperation(ctx, "session", "oldest_by_user", "success")
	return &s, nil
}

// Touch updates last_seen_at. Best-effort by contract: callers log failures
// and never fail the request on them.
func (r *GormSessionRepository) Touch(ctx context.Context, jti string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.ActiveSession{}).
		Where("access_jti = ?", jti).
		Update("last_seen_at", at.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "touch", "error")
		return wrapStoreErr("touch session", res.Error)
	}
	observability.RecordRepositoryOperation(ctx, "session", "touch", "success")
	return nil
}

func (r *GormSessionRepository) DeleteByRefreshTokenID(ctx context.Context, refreshTokenID string) error {
	err := r.db.WithContext(ctx).Where("refresh_token_id = ?", refreshTokenID).Delete(&domain.ActiveSession{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_by_refresh_token_id", "error")
		return wrapStoreErr("delete session", err)
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_by_refresh_token_id", "success")
	return nil
}

func (r *GormSessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.ActiveSession{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_all_for_user", "error")
		return res.RowsAffected, wrapStoreErr("delete sessions for user", res.Error)
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_all_for_user", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.ActiveSession{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_expired", "error")
		return res.RowsAffected, wrapStoreErr("delete expired sessions", res.Error)
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_expired", "success")
	return res.RowsAffected, nil
}
