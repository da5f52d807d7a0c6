package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/timekeeper-hq/authcore/internal/cache"
	"github.com/timekeeper-hq/authcore/internal/domain"
	"github.com/timekeeper-hq/authcore/internal/observability"
	"github.com/timekeeper-hq/authcore/internal/repository"
	"github.com/timekeeper-hq/authcore/internal/security"
)

// TokenPair is the result of issuance or rotation.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// TokenService mints access/refresh pairs, rotates refresh tokens and
// drives revocation. A RefreshToken and its ActiveSession are only ever
// created together.
type TokenService struct {
	signer      security.TokenSigner
	tokens      repository.RefreshTokenRepository
	sessions    repository.SessionRepository
	revocations cache.RevocationStore
	pepper      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	maxSessions int
}

func NewTokenService(
	signer security.TokenSigner,
	tokens repository.RefreshTokenRepository,
	sessions repository.SessionRepository,
	revocations cache.RevocationStore,
	pepper string,
	accessTTL, refreshTTL time.Duration,
	maxSessions int,
) *TokenService {
	return &TokenService{
		signer:      signer,
		tokens:      tokens,
		sessions:    sessions,
		revocations: revocations,
		pepper:      pepper,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		maxSessions: maxSessions,
	}
}

// Issue mints an access token and an opaque refresh token, persists the
// RefreshToken+ActiveSession pair and warms the revocation cache. When the
// per-user session cap would be exceeded, the least-recently-seen session
// is evicted first.
func (s *TokenService) Issue(ctx context.Context, user *domain.User, deviceLabel, ip string) (*TokenPair, error) {
	if err := s.enforceSessionCap(ctx, user.ID); err != nil {
		return nil, err
	}

	secret, err := security.NewOpaqueSecret()
	if err != nil {
		observability.RecordTokenOperation(ctx, "issue", "error")
		return nil, err
	}
	access, claims, err := s.signer.Sign(user.ID, user.Username, user.Role, s.accessTTL)
	if err != nil {
		observability.RecordTokenOperation(ctx, "issue", "error")
		return nil, err
	}

	now := time.Now()
	refreshExpiry := now.Add(s.refreshTTL)
	token := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashTokenSecret(secret, s.pepper),
		ExpiresAt: refreshExpiry,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		observability.RecordTokenOperation(ctx, "issue", "error")
		return nil, err
	}
	session := &domain.ActiveSession{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		RefreshTokenID: token.ID,
		AccessJTI:      claims.ID,
		DeviceLabel:    deviceLabel,
		IP:             ip,
		LastSeenAt:     now,
		ExpiresAt:      refreshExpiry,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// The orphaned unused RefreshToken is harmless; the reaper
		// removes it once expired.
		observability.RecordTokenOperation(ctx, "issue", "error")
		return nil, err
	}

	s.cacheMark(ctx, cache.AccessKey(claims.ID), true, s.accessTTL)
	s.cacheMark(ctx, cache.RefreshKey(token.ID), true, s.refreshTTL)

	observability.RecordTokenOperation(ctx, "issue", "success")
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:     security.EncodeRefreshToken(token.ID, secret),
		RefreshExpiresAt: refreshExpiry,
		SessionID:        session.ID,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The consume is a single
// atomic conditional update, so two callers racing on the same secret get
// exactly one winner. Presenting an already-consumed token is treated as
// theft: every session for that user is revoked.
func (s *TokenService) Rotate(ctx context.Context, compound string, userFetcher func(ctx context.Context, id string) (*domain.User, error), deviceLabel, ip string) (*TokenPair, error) {
	id, secret, err := security.DecodeRefreshToken(compound)
	if err != nil {
		observability.RecordTokenOperation(ctx, "rotate", "malformed")
		return nil, ErrInvalidToken
	}
	hash := security.HashTokenSecret(secret, s.pepper)

	consumed, err := s.tokens.ConsumeByHash(ctx, hash, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTokenAlreadyUsed):
			s.handleReuse(ctx, consumed)
			return nil, ErrTokenReuseDetected
		case errors.Is(err, repository.ErrTokenNotFound):
			observability.RecordTokenOperation(ctx, "rotate", "not_found")
			return nil, ErrInvalidToken
		default:
			observability.RecordTokenOperation(ctx, "rotate", "error")
			return nil, err
		}
	}
	if consumed.ID != id {
		// Hash matched but the compound carried a foreign id.
		observability.RecordTokenOperation(ctx, "rotate", "mismatch")
		return nil, ErrInvalidToken
	}

	user, err := userFetcher(ctx, consumed.UserID)
	if err != nil {
		observability.RecordTokenOperation(ctx, "rotate", "error")
		return nil, ErrInvalidToken
	}

	// Retire the old session before minting the replacement so the cap
	// check never counts both.
	s.retireSession(ctx, consumed)

	pair, err := s.Issue(ctx, user, deviceLabel, ip)
	if err != nil {
		return nil, err
	}
	observability.RecordTokenOperation(ctx, "rotate", "success")
	return pair, nil
}

// RevokeSession tears down the session holding the given refresh token,
// marking both of its identifiers inactive in the cache.
func (s *TokenService) RevokeSession(ctx context.Context, compound, userID string) error {
	id, secret, err := security.DecodeRefreshToken(compound)
	if err != nil {
		return ErrInvalidToken
	}
	session, err := s.sessions.FindByRefreshTokenID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if session.UserID != userID {
		return ErrInvalidToken
	}
	// The secret must match the stored hash; holding the session id alone
	// is not enough to log someone else out.
	consumed, err := s.tokens.ConsumeByHash(ctx, security.HashTokenSecret(secret, s.pepper), time.Now())
	if err != nil && !errors.Is(err, repository.ErrTokenAlreadyUsed) {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if consumed != nil && consumed.ID != id {
		return ErrInvalidToken
	}
	if err := s.revokeSessionRow(ctx, session); err != nil {
		return err
	}
	observability.RecordTokenOperation(ctx, "revoke", "success")
	return nil
}

// RevokeAllForUser revokes every active session for the user: cache markers
// first (while the rows still tell us the jtis), then the durable rows.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range sessions {
		s.poisonSession(ctx, &sessions[i], now)
	}
	if _, err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.tokens.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	observability.RecordTokenOperation(ctx, "revoke_all", "success")
	observability.Audit(ctx, "sessions_revoked", "user_id", userID, "reason", reason, "count", len(sessions))
	return nil
}

func (s *TokenService) enforceSessionCap(ctx context.Context, userID string) error {
	if s.maxSessions <= 0 {
		return nil
	}
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	// Bounded by the count read up front, so a store that accepts reads
	// but refuses deletes cannot turn this into an infinite loop.
	for ; count >= int64(s.maxSessions); count-- {
		oldest, err := s.sessions.OldestByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return nil
			}
			return err
		}
		if err := s.revokeSessionRow(ctx, oldest); err != nil {
			return err
		}
		observability.Audit(ctx, "session_evicted", "user_id", userID, "session_id", oldest.ID)
	}
	return nil
}

// handleReuse bounds the damage of a stolen refresh token to its single
// successful replay: the whole session family for the user is revoked.
func (s *TokenService) handleReuse(ctx context.Context, used *domain.RefreshToken) {
	observability.RecordTokenOperation(ctx, "rotate", "reuse_detected")
	if used == nil {
		return
	}
	observability.Audit(ctx, "token_reuse_detected", "user_id", used.UserID, "refresh_token_id", used.ID)
	if err := s.RevokeAllForUser(ctx, used.UserID, "reuse_detected"); err != nil {
		slog.ErrorContext(ctx, "revoke after reuse detection failed", "user_id", used.UserID, "error", err)
	}
}

// retireSession removes the old session after a successful rotation and
// poisons its cache entries. The consumed token row stays behind on
// purpose: a later replay of it must read as "already used", which is the
// reuse-detection signal. The reaper removes the row at expiry.
func (s *TokenService) retireSession(ctx context.Context, oldToken *domain.RefreshToken) {
	session, err := s.sessions.FindByRefreshTokenID(ctx, oldToken.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			slog.WarnContext(ctx, "rotating session lookup failed", "refresh_token_id", oldToken.ID, "error", err)
		}
		return
	}
	s.poisonSession(ctx, session, time.Now())
	if err := s.sessions.DeleteByRefreshTokenID(ctx, session.RefreshTokenID); err != nil {
		slog.WarnContext(ctx, "session delete failed", "session_id", session.ID, "error", err)
	}
}

// revokeSessionRow tears a session fully down, token row included. Used by
// logout and cap eviction, where the refresh token must stop rotating even
// if it was never consumed.
func (s *TokenService) revokeSessionRow(ctx context.Context, session *domain.ActiveSession) error {
	s.poisonSession(ctx, session, time.Now())
	if err := s.sessions.DeleteByRefreshTokenID(ctx, session.RefreshTokenID); err != nil {
		return fmt.Errorf("delete session %s: %w", session.ID, err)
	}
	if err := s.tokens.DeleteByID(ctx, session.RefreshTokenID); err != nil {
		return fmt.Errorf("delete refresh token %s: %w", session.RefreshTokenID, err)
	}
	return nil
}

// poisonSession marks both of a session's cache keys revoked. The access
// marker only needs to outlive the access token, which expired at most
// accessTTL after the session was created; the refresh marker covers the
// session's own remaining lifetime.
func (s *TokenService) poisonSession(ctx context.Context, session *domain.ActiveSession, now time.Time) {
	s.cacheMark(ctx, cache.AccessKey(session.AccessJTI), false, session.CreatedAt.Add(s.accessTTL).Sub(now))
	s.cacheMark(ctx, cache.RefreshKey(session.RefreshTokenID), false, session.ExpiresAt.Sub(now))
}

// cacheMark is write-through and best-effort: a failed cache write degrades
// reads to the durable store, it never fails the operation.
func (s *TokenService) cacheMark(ctx context.Context, key string, active bool, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	var err error
	if active {
		err = s.revocations.MarkActive(ctx, key, ttl)
	} else {
		err = s.revocations.MarkRevoked(ctx, key, ttl)
	}
	if err != nil {
		slog.WarnContext(ctx, "revocation cache write failed", "key", key, "error", err)
	}
}
