package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/timekeeper-hq/authcore/internal/domain"
	"github.com/timekeeper-hq/authcore/internal/repository"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.User{}}
}

func (r *fakeUserRepo) add(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *fakeUserRepo) get(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	if u := r.get(id); u != nil {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	r.add(u)
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := time.Now()
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	return nil
}

func (r *fakeUserRepo) SetPendingMFASecret(_ context.Context, userID, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.MFASecret = &secret
	u.MFAEnabledAt = nil
	return nil
}

func (r *fakeUserRepo) ActivateMFA(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := time.Now()
	u.MFAEnabledAt = &now
	return nil
}

func (r *fakeUserRepo) DisableMFA(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.MFASecret = nil
	u.MFAEnabledAt = nil
	return nil
}

func (r *fakeUserRepo) RecordLoginFailure(_ context.Context, userID string, now time.Time, policy repository.LockoutPolicy) (repository.LockoutState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.LockoutState{}, repository.ErrUserNotFound
	}
	if u.LockedAt(now) {
		return repository.LockoutState{
			FailedAttempts: u.FailedLoginAttempts,
			LockedUntil:    u.LockedUntil,
			LockoutCount:   u.LockoutCount,
		}, nil
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= policy.Threshold {
		u.FailedLoginAttempts = 0
		u.LockoutCount++
		until := now.Add(policy.Duration)
		u.LockedUntil = &until
		return repository.LockoutState{LockedUntil: &until, LockoutCount: u.LockoutCount, BecameLocked: true}, nil
	}
	return repository.LockoutState{FailedAttempts: u.FailedLoginAttempts, LockoutCount: u.LockoutCount}, nil
}

func (r *fakeUserRepo) ClearLoginFailures(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LockoutCount = 0
	return nil
}

func (r *fakeUserRepo) UnlockAccount(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LockoutCount = 0
	return true, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	byHash map[string]*domain.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{byHash: map[string]*domain.RefreshToken{}}
}

func (r *fakeTokenRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	cp.CreatedAt = time.Now()
	r.byHash[token.TokenHash] = &cp
	return nil
}

func (r *fakeTokenRepo) ConsumeByHash(_ context.Context, hash string, now time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.byHash[hash]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	if tok.UsedAt != nil {
		cp := *tok
		return &cp, repository.ErrTokenAlreadyUsed
	}
	if !tok.ExpiresAt.After(now) {
		return nil, repository.ErrTokenNotFound
	}
	used := now
	tok.UsedAt = &used
	cp := *tok
	return &cp, nil
}

func (r *fakeTokenRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, tok := range r.byHash {
		if tok.ID == id {
			delete(r.byHash, hash)
		}
	}
	return nil
}

func (r *fakeTokenRepo) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, tok := range r.byHash {
		if tok.UserID == userID {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (r *fakeTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, tok := range r.byHash {
		if !tok.ExpiresAt.After(now) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.ActiveSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*domain.ActiveSession{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *domain.ActiveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.CreatedAt = time.Now()
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) FindByRefreshTokenID(_ context.Context, refreshTokenID string) (*domain.ActiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshTokenID == refreshTokenID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *fakeSessionRepo) FindByAccessJTI(_ context.Context, jti string) (*domain.ActiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.AccessJTI == jti {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *fakeSessionRepo) ListByUser(_ context.Context, userID string) ([]domain.ActiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ActiveSession
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *fakeSessionRepo) CountByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) OldestByUser(_ context.Context, userID string) (*domain.ActiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.ActiveSession
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		if oldest == nil || s.LastSeenAt.Before(oldest.LastSeenAt) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil, repository.ErrSessionNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, jti string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.AccessJTI == jti {
			s.LastSeenAt = at
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeleteByRefreshTokenID(_ context.Context, refreshTokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.RefreshTokenID == refreshTokenID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeResetRepo struct {
	mu     sync.Mutex
	byHash map[string]*domain.PasswordReset
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{byHash: map[string]*domain.PasswordReset{}}
}

func (r *fakeResetRepo) Create(_ context.Context, reset *domain.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *reset
	cp.CreatedAt = time.Now()
	r.byHash[reset.TokenHash] = &cp
	return nil
}

func (r *fakeResetRepo) Consume(_ context.Context, hash string, now time.Time) (*domain.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reset, ok := r.byHash[hash]
	if !ok || reset.UsedAt != nil {
		return nil, repository.ErrResetNotFound
	}
	if !reset.ExpiresAt.After(now) {
		return nil, repository.ErrResetExpired
	}
	used := now
	reset.UsedAt = &used
	cp := *reset
	return &cp, nil
}

func (r *fakeResetRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, reset := range r.byHash {
		if !reset.ExpiresAt.After(now) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}
