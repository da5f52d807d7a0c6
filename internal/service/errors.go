package service

import (
	"errors"

	"github.com/timekeeper-hq/authcore/internal/repository"
)

// Stable error kinds surfaced to callers. No internal detail (SQL text,
// stack traces) travels with them.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	ErrRateLimited        = errors.New("too many requests")
	ErrResetTokenInvalid  = errors.New("invalid password reset token")
	ErrResetTokenExpired  = errors.New("expired password reset token")

	// ErrInfrastructureUnavailable is the repository layer's store sentinel
	// re-exported, so transport code matches one taxonomy. Repository calls
	// wrap unexpected store failures in it and services pass them through.
	ErrInfrastructureUnavailable = repository.ErrStoreUnavailable

	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	ErrMFANotEnabled     = errors.New("mfa not enabled")
	ErrMFANotPending     = errors.New("mfa enrollment not initiated")
	ErrPasswordTooWeak   = errors.New("password does not meet strength requirements")
)
