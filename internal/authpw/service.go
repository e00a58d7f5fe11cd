// Package authpw provides email/password authentication for the admin owner.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kisscoffee/site/internal/store"
)

const (
	// FreeAttempts is the number of consecutive failures allowed before a cooldown starts.
	FreeAttempts = 3
	// CooldownCapSeconds bounds the cooldown after repeated failures.
	CooldownCapSeconds = 30
	// RoleOwner is the role of the bootstrapped account.
	RoleOwner = "owner"
)

// ErrInvalidCredentials is returned for every credential failure. It never
// tells which of email or password was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ThrottleError is returned while a cooldown after repeated failures is active.
type ThrottleError struct {
	Wait int
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("too many failed sign-in attempts, retry in %d seconds", e.Wait)
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	UpsertUser(ctx context.Context, user store.User) (store.User, error)
}

// Throttle records failed attempts and cooldowns per email.
type Throttle interface {
	RecordLoginFailed(ctx context.Context, subject string) (int, error)
	StartCooldown(ctx context.Context, subject string, d time.Duration) error
	LoginWaitSeconds(ctx context.Context, subject string) (int, error)
	RecordLoginSuccess(ctx context.Context, subject string) error
}

// Service provides email/password authentication
type Service struct {
	users    UserStore
	throttle Throttle
	hashCost int
}

// NewService creates a new auth service
func NewService(users UserStore, throttle Throttle) *Service {
	return &Service{
		users:    users,
		throttle: throttle,
		hashCost: bcrypt.DefaultCost,
	}
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	subject := normalizeEmail(req.Email)
	if subject == "" || req.Password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	wait, err := s.throttle.LoginWaitSeconds(ctx, subject)
	if err != nil {
		return store.User{}, err
	}
	if wait > 0 {
		return store.User{}, &ThrottleError{Wait: wait}
	}

	user, err := s.users.GetUserByEmail(ctx, subject)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, s.fail(ctx, subject)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, s.fail(ctx, subject)
	}

	if err := s.throttle.RecordLoginSuccess(ctx, subject); err != nil {
		return store.User{}, err
	}
	return user, nil
}

func (s *Service) fail(ctx context.Context, subject string) error {
	count, err := s.throttle.RecordLoginFailed(ctx, subject)
	if err != nil {
		return err
	}
	if count >= FreeAttempts {
		if err := s.throttle.StartCooldown(ctx, subject, time.Duration(CooldownSecondsForFailCount(count))*time.Second); err != nil {
			return err
		}
	}
	return ErrInvalidCredentials
}

// EnsureOwner makes sure an owner account with the given credentials exists.
// An existing account with the same email keeps its id and gets the new
// password and the owner role.
func (s *Service) EnsureOwner(ctx context.Context, email, password, displayName string) (store.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return store.User{}, errors.New("owner email and password are required")
	}
	if len(password) < 8 {
		return store.User{}, errors.New("owner password must be at least 8 characters")
	}
	if displayName == "" {
		displayName = "Owner"
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == RoleOwner && existing.DisplayName == displayName &&
			bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(password)) == nil {
			return existing, nil
		}
	case !errors.Is(err, store.ErrNotFound):
		return store.User{}, fmt.Errorf("lookup owner: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	id := existing.ID
	if id == "" {
		id = "usr_" + uuid.NewString()
	}
	user, err := s.users.UpsertUser(ctx, store.User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         RoleOwner,
	})
	if err != nil {
		return store.User{}, fmt.Errorf("save owner: %w", err)
	}
	return user, nil
}

// CooldownSecondsForFailCount returns min(30, 2^failCount).
func CooldownSecondsForFailCount(failCount int) int {
	if failCount >= 5 {
		return CooldownCapSeconds
	}
	seconds := int(math.Pow(2, float64(failCount)))
	if seconds > CooldownCapSeconds {
		return CooldownCapSeconds
	}
	return seconds
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
