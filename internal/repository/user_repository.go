package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timekeeper-hq/authcore/internal/domain"
	"github.com/timekeeper-hq/authcore/internal/observability"
)

var ErrUserNotFound = errors.New("user not found")

// LockoutPolicy configures the failure-counting state machine.
type LockoutPolicy struct {
	Threshold      int
	Duration       time.Duration
	BackoffEnabled bool
	MaxDuration    time.Duration
}

// LockoutState is the post-update view of a user's lockout bookkeeping.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	LockoutCount   int
	BecameLocked   bool
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetPendingMFASecret(ctx context.Context, userID, secret string) error
	ActivateMFA(ctx context.Context, userID string) error
	DisableMFA(ctx context.Context, userID string) error
	RecordLoginFailure(ctx context.Context, userID string, now time.Time, policy LockoutPolicy) (LockoutState, error)
	ClearLoginFailures(ctx context.Context, userID string) error
	UnlockAccount(ctx context.Context, userID string) (bool, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "find_by_id", "id = ?", id)
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "find_by_username", "username = ?", username)
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find_by_email", "email = ?", email)
}

func (r *GormUserRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return nil, wrapStoreErr("find user", err)
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return wrapStoreErr("create user", err)
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	now := time.Now().UTC()
	return r.update(ctx, "update_password", userID, map[string]any{
		"password_hash":       passwordHash,
		"password_changed_at": now,
	})
}

func (r *GormUserRepository) SetPendingMFASecret(ctx context.Context, userID, secret string) error {
	return r.update(ctx, "set_pending_mfa_secret", userID, map[string]any{
		"mfa_secret":     secret,
		"mfa_enabled_at": nil,
	})
}

func (r *GormUserRepository) ActivateMFA(ctx context.Context, userID string) error {
	return r.update(ctx, "activate_mfa", userID, map[string]any{
		"mfa_enabled_at": time.Now().UTC(),
	})
}

func (r *GormUserRepository) DisableMFA(ctx context.Context, userID string) error {
	return r.update(ctx, "disable_mfa", userID, map[string]any{
		"mfa_secret":     nil,
		"mfa_enabled_at": nil,
	})
}

func (r *GormUserRepository) update(ctx context.Context, op, userID string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(values)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return wrapStoreErr("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return nil
}

// RecordLoginFailure advances the lockout state machine by exactly one
// failed attempt. The row lock makes concurrent failures serialize, so no
// increment is lost. While the account is locked the counters do not move.
func (r *GormUserRepository) RecordLoginFailure(ctx context.Context, userID string, now time.Time, policy LockoutPolicy) (LockoutState, error) {
	var state LockoutState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).
			First(&u).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if u.LockedAt(now) {
			state = LockoutState{
				FailedAttempts: u.FailedLoginAttempts,
				LockedUntil:    u.LockedUntil,
				LockoutCount:   u.LockoutCount,
			}
			return nil
		}

		threshold := policy.Threshold
		if threshold < 1 {
			threshold = 1
		}
		attempts := u.FailedLoginAttempts + 1
		if attempts >= threshold {
			count := u.LockoutCount + 1
			until := now.Add(lockoutDuration(count, policy))
			if err := tx.Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
				"failed_login_attempts": 0,
				"locked_until":          until,
				"lockout_count":         count,
			}).Error; err != nil {
				return err
			}
			state = LockoutState{LockedUntil: &until, LockoutCount: count, BecameLocked: true}
			return nil
		}

		if err := tx.Model(&domain.User{}).Where("id = ?", userID).
			Update("failed_login_attempts", attempts).Error; err != nil {
			return err
		}
		state = LockoutState{FailedAttempts: attempts, LockoutCount: u.LockoutCount}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "record_login_failure", "not_found")
			return LockoutState{}, err
		}
		observability.RecordRepositoryOperation(ctx, "user", "record_login_failure", "error")
		return LockoutState{}, wrapStoreErr("record login failure", err)
	}
	observability.RecordRepositoryOperation(ctx, "user", "record_login_failure", "success")
	return state, nil
}

func (r *GormUserRepository) ClearLoginFailures(ctx context.Context, userID string) error {
	return r.update(ctx, "clear_login_failures", userID, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"lockout_count":         0,
	})
}

func (r *GormUserRepository) UnlockAccount(ctx context.Context, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"lockout_count":         0,
	})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", "unlock_account", "error")
		return false, wrapStoreErr("unlock account", res.Error)
	}
	observability.RecordRepositoryOperation(ctx, "user", "unlock_account", "success")
	return res.RowsAffected > 0, nil
}

// lockoutDuration doubles the base duration per prior lockout, capped at
// the configured maximum.
func lockoutDuration(lockoutCount int, policy LockoutPolicy) time.Duration {
	base := policy.Duration
	if base <= 0 {
		base = time.Minute
	}
	if !policy.BackoffEnabled {
		return base
	}
	exponent := lockoutCount - 1
	if exponent < 0 {
		exponent = 0
	}
	if exponent > 20 {
		exponent = 20
	}
	d := base << uint(exponent)
	if policy.MaxDuration > 0 && d > policy.MaxDuration {
		d = policy.MaxDuration
	}
	return d
}
