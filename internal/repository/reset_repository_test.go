package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timekeeper-hq/authcore/internal/domain"
)

func seedReset(t *testing.T, repo PasswordResetRepository, id, userID, hash string, expiresAt time.Time) {
	t.Helper()
	err := repo.Create(context.Background(), &domain.PasswordReset{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		t.Fatalf("create reset %s: %v", id, err)
	}
}

func TestResetConsumeIsSingleUse(t *testing.T) {
	repo := NewPasswordResetRepository(newTestDB(t))
	seedReset(t, repo, "pr-1", "user-1", "hash-1", time.Now().Add(time.Hour))

	got, err := repo.Consume(context.Background(), "hash-1", time.Now())
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.UserID != "user-1" || got.UsedAt == nil {
		t.Fatalf("unexpected reset row: %+v", got)
	}

	if _, err := repo.Consume(context.Background(), "hash-1", time.Now()); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected second consume to fail with ErrResetNotFound, got %v", err)
	}
}

func TestResetConsumeExpired(t *testing.T) {
	repo := NewPasswordResetRepository(newTestDB(t))
	seedReset(t, repo, "pr-1", "user-1", "hash-1", time.Now().Add(-time.Minute))

	if _, err := repo.Consume(context.Background(), "hash-1", time.Now()); !errors.Is(err, ErrResetExpired) {
		t.Fatalf("expected ErrResetExpired, got %v", err)
	}
}

func TestResetConsumeUnknownHash(t *testing.T) {
	repo := NewPasswordResetRepository(newTestDB(t))
	if _, err := repo.Consume(context.Background(), "missing", time.Now()); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound, got %v", err)
	}
}

func TestResetDeleteExpired(t *testing.T) {
	repo := NewPasswordResetRepository(newTestDB(t))
	seedReset(t, repo, "pr-live", "user-1", "h-live", time.Now().Add(time.Hour))
	seedReset(t, repo, "pr-dead", "user-1", "h-dead", time.Now().Add(-time.Hour))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
	if _, err := repo.Consume(context.Background(), "h-live", time.Now()); err != nil {
		t.Fatalf("live reset should survive: %v", err)
	}
}
