package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newMemoryWithClock() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.SetClock(clock.Now)
	return s, clock
}

func TestMemoryRefreshSessionExpires(t *testing.T) {
	s, clock := newMemoryWithClock()
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "hash", owner("user-1"), clock.now.Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if user, err := s.LookupRefreshSession(ctx, "hash"); err != nil || user.ID != "user-1" {
		t.Fatalf("lookup = %+v (%v)", user, err)
	}

	clock.Advance(time.Hour)
	if _, err := s.LookupRefreshSession(ctx, "hash"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after expiry, got %v", err)
	}
}

func TestMemoryRevokedAccessToken(t *testing.T) {
	s, clock := newMemoryWithClock()
	ctx := context.Background()

	if err := s.RevokeAccessToken(ctx, "jti", clock.now.Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	if revoked, _ := s.IsAccessTokenRevoked(ctx, "jti"); !revoked {
		t.Fatal("expected token to be revoked")
	}
	clock.Advance(time.Minute)
	if revoked, _ := s.IsAccessTokenRevoked(ctx, "jti"); revoked {
		t.Fatal("expected revocation to lapse at expiry")
	}
}

func TestMemoryLoginThrottle(t *testing.T) {
	s, clock := newMemoryWithClock()
	ctx := context.Background()
	subject := "owner@kisscoffee.example"

	for i := 0; i < 3; i++ {
		if _, err := s.RecordLoginFailed(ctx, subject); err != nil {
			t.Fatalf("RecordLoginFailed failed: %v", err)
		}
	}
	if err := s.StartCooldown(ctx, subject, 1500*time.Millisecond); err != nil {
		t.Fatalf("StartCooldown failed: %v", err)
	}
	if wait, _ := s.LoginWaitSeconds(ctx, subject); wait != 2 {
		t.Fatalf("wait = %d, want 2 (rounded up)", wait)
	}

	clock.Advance(2 * time.Second)
	if wait, _ := s.LoginWaitSeconds(ctx, subject); wait != 0 {
		t.Fatalf("wait = %d after cooldown, want 0", wait)
	}

	clock.Advance(failureWindow + time.Second)
	if got, _ := s.RecordLoginFailed(ctx, subject); got != 1 {
		t.Fatalf("fail count after window = %d, want 1", got)
	}

	if err := s.RecordLoginSuccess(ctx, subject); err != nil {
		t.Fatalf("RecordLoginSuccess failed: %v", err)
	}
	if got, _ := s.RecordLoginFailed(ctx, subject); got != 1 {
		t.Fatalf("fail count after success = %d, want 1", got)
	}
}
