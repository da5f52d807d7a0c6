package service

import (
	"context"
	"errors"
	"time"

	"github.com/timekeeper-hq/authcore/internal/domain"
	"github.com/timekeeper-hq/authcore/internal/observability"
	"github.com/timekeeper-hq/authcore/internal/repository"
	"github.com/timekeeper-hq/authcore/internal/security"
)

// LoginInput carries everything a login attempt presents.
type LoginInput struct {
	Username    string
	Password    string
	MFACode     string
	DeviceLabel string
	IP          string
}

// AuthService runs the credential verification pipeline: password check,
// lockout accounting, the optional TOTP step and finally token issuance.
type AuthService struct {
	users   repository.UserRepository
	tokens  *TokenService
	lockout repository.LockoutPolicy
}

func NewAuthService(users repository.UserRepository, tokens *TokenService, lockout repository.LockoutPolicy) *AuthService {
	return &AuthService{users: users, tokens: tokens, lockout: lockout}
}

// Login authenticates the user and returns a fresh token pair. Failure
// reasons collapse into a small error set so responses do not leak which
// stage rejected the attempt. An unknown username still burns a password
// verification so the timing matches the known-user path.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*TokenPair, error) {
	now := time.Now()

	user, err := s.users.FindByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			security.VerifyDummyPassword(input.Password)
			observability.RecordLoginOutcome(ctx, "invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		observability.RecordLoginOutcome(ctx, "error")
		return nil, err
	}

	if user.LockedAt(now) {
		observability.RecordLoginOutcome(ctx, "locked")
		return nil, ErrAccountLocked
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		observability.RecordLoginOutcome(ctx, "error")
		return nil, err
	}
	if !ok {
		s.recordFailure(ctx, user, now)
		observability.RecordLoginOutcome(ctx, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnabled() {
		// A correct password with no code is not a strike; the client
		// simply has not finished the challenge yet.
		if input.MFACode == "" {
			observability.RecordLoginOutcome(ctx, "mfa_required")
			return nil, ErrMFARequired
		}
		if !security.VerifyTOTP(*user.MFASecret, input.MFACode, now) {
			s.recordFailure(ctx, user, now)
			observability.RecordLoginOutcome(ctx, "mfa_invalid")
			return nil, ErrMFAInvalid
		}
	}

	if err := s.users.ClearLoginFailures(ctx, user.ID); err != nil {
		observability.RecordLoginOutcome(ctx, "error")
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, user, input.DeviceLabel, input.IP)
	if err != nil {
		observability.RecordLoginOutcome(ctx, "error")
		return nil, err
	}
	observability.RecordLoginOutcome(ctx, "success")
	observability.Audit(ctx, "login_succeeded", "user_id", user.ID, "ip", input.IP)
	return pair, nil
}

// Refresh rotates a refresh token, resolving the owning user through the
// user repository.
func (s *AuthService) Refresh(ctx context.Context, compound, deviceLabel, ip string) (*TokenPair, error) {
	return s.tokens.Rotate(ctx, compound, s.users.FindByID, deviceLabel, ip)
}

// Logout tears down the single session identified by the refresh token.
// With no token supplied it falls back to revoking everything.
func (s *AuthService) Logout(ctx context.Context, compound, userID string) error {
	if compound == "" {
		return s.tokens.RevokeAllForUser(ctx, userID, "logout")
	}
	return s.tokens.RevokeSession(ctx, compound, userID)
}

// LogoutEverywhere revokes all of the user's sessions.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID string) error {
	return s.tokens.RevokeAllForUser(ctx, userID, "logout_everywhere")
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every session. The caller logs back in with the new password.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	ok, err := security.VerifyPassword(current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if next == current {
		return ErrPasswordTooWeak
	}
	if err := DefaultPasswordPolicy.Validate(next); err != nil {
		return err
	}
	hash, err := security.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, userID, "password_changed"); err != nil {
		return err
	}
	observability.Audit(ctx, "password_changed", "user_id", userID)
	return nil
}

// Unlock clears a user's lockout state ahead of its expiry. Intended for
// administrative use; the cleared flag reports whether the row existed.
func (s *AuthService) Unlock(ctx context.Context, userID string) (bool, error) {
	cleared, err := s.users.UnlockAccount(ctx, userID)
	if err != nil {
		return false, err
	}
	if cleared {
		observability.Audit(ctx, "account_unlocked", "user_id", userID)
	}
	return cleared, nil
}

func (s *AuthService) recordFailure(ctx context.Context, user *domain.User, now time.Time) {
	state, err := s.users.RecordLoginFailure(ctx, user.ID, now, s.lockout)
	if err != nil {
		observability.Audit(ctx, "login_failure_record_error", "user_id", user.ID, "error", err.Error())
		return
	}
	if state.BecameLocked {
		observability.Audit(ctx, "account_locked", "user_id", user.ID,
			"locked_until", state.LockedUntil, "lockout_count", state.LockoutCount)
	}
}
