package service

import (
	"context"
	"errors"
	"time"

	"github.com/timekeeper-hq/authcore/internal/observability"
	"github.com/timekeeper-hq/authcore/internal/repository"
)

// ReapReport counts rows removed by a single sweep.
type ReapReport struct {
	RefreshTokens int64
	Sessions      int64
	Resets        int64
}

func (r ReapReport) Total() int64 { return r.RefreshTokens + r.Sessions + r.Resets }

// Reaper deletes expired refresh tokens, sessions and reset tokens. The
// revocation cache needs no sweep; its entries carry their own TTLs.
type Reaper struct {
	tokens   repository.RefreshTokenRepository
	sessions repository.SessionRepository
	resets   repository.PasswordResetRepository
}

func NewReaper(tokens repository.RefreshTokenRepository, sessions repository.SessionRepository, resets repository.PasswordResetRepository) *Reaper {
	return &Reaper{tokens: tokens, sessions: sessions, resets: resets}
}

// Run performs one sweep. Each table is swept independently; a failure in
// one does not stop the others, and all failures are reported joined.
func (r *Reaper) Run(ctx context.Context) (ReapReport, error) {
	now := time.Now()
	var report ReapReport
	var errs []error

	n, err := r.sessions.DeleteExpired(ctx, now)
	report.Sessions = n
	if err != nil {
		errs = append(errs, err)
	}

	n, err = r.tokens.DeleteExpired(ctx, now)
	report.RefreshTokens = n
	if err != nil {
		errs = append(errs, err)
	}

	n, err = r.resets.DeleteExpired(ctx, now)
	report.Resets = n
	if err != nil {
		errs = append(errs, err)
	}

	observability.Audit(ctx, "expired_rows_reaped",
		"refresh_tokens", report.RefreshTokens,
		"sessions", report.Sessions,
		"password_resets", report.Resets)
	return report, errors.Join(errs...)
}
