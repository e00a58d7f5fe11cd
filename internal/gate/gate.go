// Package gate tracks whether an editing session is signed in and tells
// subscribers when that changes.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"kisscoffee/site/internal/auth"
	"kisscoffee/site/internal/authpw"
)

// ErrInvalidCredentials is the only credential failure a caller ever sees.
var ErrInvalidCredentials = errors.New("invalid email or password")

// State is the authentication state of a gate.
type State int

const (
	LoggedOut State = iota
	LoggedIn
)

func (s State) String() string {
	if s == LoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// Authenticator is the identity backend behind a gate.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (auth.Session, error)
	SessionFromToken(ctx context.Context, token string) (auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Session, error)
	Logout(ctx context.Context, session auth.Session) error
}

type Gate struct {
	mu       sync.Mutex
	backend  Authenticator
	session  *auth.Session
	handlers []func(bool)
	now      func() time.Time
}

func New(backend Authenticator) *Gate {
	return &Gate{backend: backend, now: time.Now}
}

// State returns LoggedIn while a session is held.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return LoggedOut
	}
	return LoggedIn
}

// Session returns the held session, if any.
func (g *Gate) Session() (auth.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return auth.Session{}, false
	}
	return *g.session, true
}

// OnSessionChange registers fn. It is called at once with the current state
// and again after every completed sign-in or sign-out.
func (g *Gate) OnSessionChange(fn func(authenticated bool)) {
	g.mu.Lock()
	g.handlers = append(g.handlers, fn)
	authenticated := g.session != nil
	g.mu.Unlock()
	fn(authenticated)
}

// SignIn authenticates with the trimmed email and the password as typed.
func (g *Gate) SignIn(ctx context.Context, email, password string) error {
	session, err := g.backend.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		var throttled *authpw.ThrottleError
		switch {
		case errors.As(err, &throttled):
			return throttled
		case errors.Is(err, authpw.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
			return ErrInvalidCredentials
		default:
			return fmt.Errorf("sign in: %w", err)
		}
	}

	g.mu.Lock()
	g.session = &session
	g.mu.Unlock()
	g.notify(true)
	return nil
}

// SignOut drops the held session and revokes its tokens. Signing out while
// signed out does nothing.
func (g *Gate) SignOut(ctx context.Context) error {
	g.mu.Lock()
	held := g.session
	g.session = nil
	g.mu.Unlock()
	if held == nil {
		return nil
	}

	g.notify(false)
	if err := g.backend.Logout(ctx, *held); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Authenticated verifies the held session. An expired access token is
// refreshed; a session that cannot be verified or refreshed is dropped and
// subscribers are told.
func (g *Gate) Authenticated(ctx context.Context) (auth.Session, bool) {
	g.mu.Lock()
	held := g.session
	g.mu.Unlock()
	if held == nil {
		return auth.Session{}, false
	}

	current := *held
	if !current.Expired(g.now()) {
		verified, err := g.backend.SessionFromToken(ctx, current.Token)
		if err == nil {
			verified.RefreshToken = current.RefreshToken
			return g.replace(held, verified), true
		}
		if !errors.Is(err, auth.ErrExpiredToken) {
			g.drop(held)
			return auth.Session{}, false
		}
	}

	if current.RefreshToken == "" {
		g.drop(held)
		return auth.Session{}, false
	}
	refreshed, err := g.backend.Refresh(ctx, current.RefreshToken)
	if err != nil {
		g.drop(held)
		return auth.Session{}, false
	}
	return g.replace(held, refreshed), true
}

func (g *Gate) replace(held *auth.Session, next auth.Session) auth.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == held {
		g.session = &next
	}
	return next
}

func (g *Gate) drop(held *auth.Session) {
	g.mu.Lock()
	if g.session != held {
		g.mu.Unlock()
		return
	}
	g.session = nil
	g.mu.Unlock()
	g.notify(false)
}

func (g *Gate) notify(authenticated bool) {
	g.mu.Lock()
	handlers := append([]func(bool){}, g.handlers...)
	g.mu.Unlock()
	for _, fn := range handlers {
		fn(authenticated)
	}
}
