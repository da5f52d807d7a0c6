package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/timekeeper-hq/authcore/internal/domain"
	"github.com/timekeeper-hq/authcore/internal/observability"
	"github.com/timekeeper-hq/authcore/internal/repository"
	"github.com/timekeeper-hq/authcore/internal/security"
)

// ResetSender delivers a reset token out of band, typically by email.
// Implementations must not log the token.
type ResetSender interface {
	SendResetToken(ctx context.Context, email, token string) error
}

// ResetService issues and consumes single-use password reset tokens. Only
// a hash of each token is stored; the plaintext exists once, in transit to
// the sender.
type ResetService struct {
	users  repository.UserRepository
	resets repository.PasswordResetRepository
	tokens *TokenService
	sender ResetSender
	pepper string
	ttl    time.Duration
	policy PasswordPolicy
}

func NewResetService(
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	tokens *TokenService,
	sender ResetSender,
	pepper string,
	ttl time.Duration,
) *ResetService {
	return &ResetService{
		users:  users,
		resets: resets,
		tokens: tokens,
		sender: sender,
		pepper: pepper,
		ttl:    ttl,
		policy: DefaultPasswordPolicy,
	}
}

// Request creates a reset token for the account behind email and hands it
// to the sender. The response is uniform whether or not the account
// exists, so the endpoint cannot be used to probe for addresses.
func (s *ResetService) Request(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.Audit(ctx, "password_reset_requested", "known_account", false)
			return nil
		}
		return err
	}

	secret, err := security.NewOpaqueSecret()
	if err != nil {
		return err
	}
	reset := &domain.PasswordReset{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashTokenSecret(secret, s.pepper),
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return err
	}
	if s.sender != nil {
		if err := s.sender.SendResetToken(ctx, user.Email, secret); err != nil {
			return err
		}
	}
	observability.Audit(ctx, "password_reset_requested", "known_account", true, "user_id", user.ID)
	return nil
}

// Consume redeems a reset token exactly once, installs the new password and
// revokes every session the account had.
func (s *ResetService) Consume(ctx context.Context, token, newPassword string) error {
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	reset, err := s.resets.Consume(ctx, security.HashTokenSecret(token, s.pepper), time.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrResetNotFound):
			return ErrResetTokenInvalid
		case errors.Is(err, repository.ErrResetExpired):
			return ErrResetTokenExpired
		default:
			return err
		}
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, reset.UserID, hash); err != nil {
		return err
	}
	// A reset also clears any lockout; the owner has proven control of the
	// account's mailbox.
	if _, err := s.users.UnlockAccount(ctx, reset.UserID); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, reset.UserID, "password_reset"); err != nil {
		return err
	}
	observability.Audit(ctx, "password_reset_completed", "user_id", reset.UserID)
	return nil
}
