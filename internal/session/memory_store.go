package session

import (
	"context"
	"sync"
	"time"

	"kisscoffee/site/internal/store"
)

type expiring struct {
	data      TokenData
	expiresAt time.Time
}

type failures struct {
	count         int
	lastFailed    time.Time
	cooldownUntil time.Time
}

// MemoryStore keeps sessions in process memory. It is used when no Redis URL
// is configured and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	refresh  map[string]expiring
	revoked  map[string]time.Time
	failures map[string]failures
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		refresh:  make(map[string]expiring),
		revoked:  make(map[string]time.Time),
		failures: make(map[string]failures),
	}
}

// SetClock replaces the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = expiring{
		data: TokenData{
			UserID:      user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			Role:        user.Role,
			CreatedAt:   s.now().UTC(),
		},
		expiresAt: expiresAt,
	}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.refresh[tokenHash]
	if !ok {
		return store.User{}, ErrSessionNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.refresh, tokenHash)
		return store.User{}, ErrSessionNotFound
	}
	return entry.data.user(), nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, tokenHash)
	return nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.now().Before(exp) {
		return nil
	}
	s.revoked[jti] = exp
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) RecordLoginFailed(_ context.Context, subject string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry := s.failures[subject]
	if !entry.lastFailed.IsZero() && now.Sub(entry.lastFailed) > failureWindow {
		entry = failures{}
	}
	entry.count++
	entry.lastFailed = now
	s.failures[subject] = entry
	return entry.count, nil
}

func (s *MemoryStore) StartCooldown(_ context.Context, subject string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.failures[subject]
	entry.cooldownUntil = s.now().Add(d)
	s.failures[subject] = entry
	return nil
}

func (s *MemoryStore) LoginWaitSeconds(_ context.Context, subject string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.failures[subject]
	if !ok || entry.cooldownUntil.IsZero() {
		return 0, nil
	}
	return waitSeconds(entry.cooldownUntil.Sub(s.now())), nil
}

func (s *MemoryStore) RecordLoginSuccess(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, subject)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
