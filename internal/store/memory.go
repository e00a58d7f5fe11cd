package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"kisscoffee/site/internal/settings"
)

// MemoryStore keeps the settings document and users in process memory. The
// document is held as raw JSON per top-level key so merges behave like the
// Postgres store.
type MemoryStore struct {
	mu    sync.RWMutex
	doc   map[string]json.RawMessage
	users map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]User{}}
}

func (s *MemoryStore) Fetch(_ context.Context) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		fields, err := settings.FullPatch(settings.Default()).Fields()
		if err != nil {
			return settings.Settings{}, opError("fetch", err)
		}
		s.doc = fields
	}

	raw, err := json.Marshal(s.doc)
	if err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("encode document: %w", err))
	}
	var doc settings.Settings
	if err := json.Unmarshal(raw, &doc); err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("decode document: %w", err))
	}
	return doc.Normalized(), nil
}

func (s *MemoryStore) Save(_ context.Context, patch settings.Patch) error {
	fields, err := patch.Fields()
	if err != nil {
		return opError("save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		s.doc = make(map[string]json.RawMessage, len(fields))
	}
	for key, value := range fields {
		s.doc[key] = value
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[normalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) UpsertUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(user.Email)
	now := time.Now().UTC()
	if existing, ok := s.users[key]; ok {
		existing.DisplayName = user.DisplayName
		existing.PasswordHash = user.PasswordHash
		existing.Role = user.Role
		existing.UpdatedAt = now
		s.users[key] = existing
		return existing, nil
	}
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[key] = user
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
