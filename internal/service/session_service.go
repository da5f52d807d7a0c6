package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/timekeeper-hq/authcore/internal/cache"
	"github.com/timekeeper-hq/authcore/internal/observability"
	"github.com/timekeeper-hq/authcore/internal/repository"
	"github.com/timekeeper-hq/authcore/internal/security"
)

// SessionView is the listing shape exposed to session owners. Token
// identifiers stay internal.
type SessionView struct {
	ID          string    `json:"id"`
	DeviceLabel string    `json:"device_label"`
	IP          string    `json:"ip"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionService answers "is this access token still live" and lists a
// user's sessions. Liveness consults the revocation cache first and falls
// back to the durable session rows on a miss.
type SessionService struct {
	sessions    repository.SessionRepository
	revocations cache.RevocationStore
	signer      security.TokenSigner
}

func NewSessionService(sessions repository.SessionRepository, revocations cache.RevocationStore, signer security.TokenSigner) *SessionService {
	return &SessionService{sessions: sessions, revocations: revocations, signer: signer}
}

// Authenticate verifies the JWT signature and claims, then checks that the
// session behind it has not been revoked. Cache errors degrade to the store
// lookup rather than failing the request.
func (s *SessionService) Authenticate(ctx context.Context, raw string) (*security.AccessClaims, error) {
	claims, err := s.signer.Verify(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}

	state, err := s.revocations.Lookup(ctx, cache.AccessKey(claims.ID))
	if err != nil {
		slog.WarnContext(ctx, "revocation cache lookup failed", "jti", claims.ID, "error", err)
		state = cache.StateUnknown
	}
	switch state {
	case cache.StateRevoked:
		observability.RecordRevocationLookup(ctx, "revoked")
		return nil, ErrInvalidToken
	case cache.StateActive:
		observability.RecordRevocationLookup(ctx, "hit")
		s.touch(ctx, claims.ID)
		return claims, nil
	}

	// Cache miss: the durable rows decide. A live session re-warms the
	// cache for the token's remaining lifetime.
	if _, err := s.sessions.FindByAccessJTI(ctx, claims.ID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordRevocationLookup(ctx, "miss_revoked")
			return nil, ErrInvalidToken
		}
		observability.RecordRevocationLookup(ctx, "error")
		return nil, err
	}
	observability.RecordRevocationLookup(ctx, "miss_active")
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > 0 {
		if err := s.revocations.MarkActive(ctx, cache.AccessKey(claims.ID), ttl); err != nil {
			slog.WarnContext(ctx, "revocation cache rewarm failed", "jti", claims.ID, "error", err)
		}
	}
	s.touch(ctx, claims.ID)
	return claims, nil
}

// List returns the user's active sessions, most recently seen first.
func (s *SessionService) List(ctx context.Context, userID string) ([]SessionView, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, SessionView{
			ID:          sess.ID,
			DeviceLabel: sess.DeviceLabel,
			IP:          sess.IP,
			CreatedAt:   sess.CreatedAt,
			LastSeenAt:  sess.LastSeenAt,
			ExpiresAt:   sess.ExpiresAt,
		})
	}
	return views, nil
}

// touch is best-effort activity bookkeeping; a failed write never rejects
// the request.
func (s *SessionService) touch(ctx context.Context, jti string) {
	if err := s.sessions.Touch(ctx, jti, time.Now()); err != nil {
		slog.DebugContext(ctx, "session touch failed", "jti", jti, "error", err)
	}
}
