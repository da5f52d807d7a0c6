package service

import (
	"context"
	"errors"
	"time"

	"github.com/timekeeper-hq/authcore/internal/observability"
	"github.com/timekeeper-hq/authcore/internal/repository"
	"github.com/timekeeper-hq/authcore/internal/security"
)

// MFAService drives TOTP enrollment. Enrollment is two-phase: a pending
// secret is stored first, and only activates once the user proves they can
// produce a valid code from it.
type MFAService struct {
	users  repository.UserRepository
	tokens *TokenService
	issuer string
}

func NewMFAService(users repository.UserRepository, tokens *TokenService, issuer string) *MFAService {
	return &MFAService{users: users, tokens: tokens, issuer: issuer}
}

// BeginEnrollment generates a fresh secret and parks it as pending. Calling
// it again before activation replaces the pending secret.
func (s *MFAService) BeginEnrollment(ctx context.Context, userID string) (*security.MFAProvision, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled() {
		return nil, ErrMFAAlreadyEnabled
	}
	provision, err := security.GenerateMFASecret(s.issuer, user.Username)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPendingMFASecret(ctx, userID, provision.Secret); err != nil {
		return nil, err
	}
	observability.Audit(ctx, "mfa_enrollment_started", "user_id", userID)
	return provision, nil
}

// Activate turns the pending secret on after the user submits a code
// derived from it. Every other session is revoked so stolen tokens from
// before the upgrade stop working.
func (s *MFAService) Activate(ctx context.Context, userID, code string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled() {
		return ErrMFAAlreadyEnabled
	}
	if !user.MFAPending() {
		return ErrMFANotPending
	}
	if !security.VerifyTOTP(*user.MFASecret, code, time.Now()) {
		return ErrMFAInvalid
	}
	if err := s.users.ActivateMFA(ctx, userID); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, userID, "mfa_activated"); err != nil {
		return err
	}
	observability.Audit(ctx, "mfa_activated", "user_id", userID)
	return nil
}

// Disable removes MFA from the account. It demands a current code as
// proof of possession and revokes all sessions afterwards.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrMFANotEnabled
		}
		return err
	}
	if !user.MFAEnabled() {
		return ErrMFANotEnabled
	}
	if !security.VerifyTOTP(*user.MFASecret, code, time.Now()) {
		return ErrMFAInvalid
	}
	if err := s.users.DisableMFA(ctx, userID); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, userID, "mfa_disabled"); err != nil {
		return err
	}
	observability.Audit(ctx, "mfa_disabled", "user_id", userID)
	return nil
}
