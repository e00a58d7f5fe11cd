package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"kisscoffee/site/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, s
}

func owner(id string) store.User {
	return store.User{ID: id, Email: id + "@kisscoffee.example", DisplayName: "Owner", Role: "owner"}
}

func TestNewRedisStore(t *testing.T) {
	rs, _ := setupTestRedis(t)
	if err := rs.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "test-token-hash", owner("user-123"), time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	user, err := rs.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "user-123" || user.Role != "owner" || user.Email != "user-123@kisscoffee.example" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "expired-token", owner("user-456"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	if _, err := rs.LookupRefreshSession(ctx, "expired-token"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for expired token, got %v", err)
	}
}

func TestSaveRefreshSessionRejectsPastExpiry(t *testing.T) {
	rs, _ := setupTestRedis(t)
	if err := rs.SaveRefreshSession(context.Background(), "late", owner("u"), time.Now().Add(-time.Minute)); err == nil {
		t.Fatal("expected error for past expiry")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "token-to-revoke", owner("user-789"), time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Lookup before revoke failed: %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "token-to-revoke"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}
	if err := rs.RevokeRefreshSession(ctx, "non-existent-token"); err != nil {
		t.Errorf("RevokeRefreshSession for non-existent token failed: %v", err)
	}
}

func TestRevokedAccessTokenExpiresWithToken(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	revoked, err := rs.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v (%v)", revoked, err)
	}
	other, err := rs.IsAccessTokenRevoked(ctx, "jti-2")
	if err != nil || other {
		t.Fatalf("unrelated jti reported revoked: %v (%v)", other, err)
	}

	s.FastForward(2 * time.Minute)

	revoked, err = rs.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected revocation to lapse with the token, got %v (%v)", revoked, err)
	}
}

func TestLoginThrottleRedis(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()
	subject := "owner@kisscoffee.example"

	for want := 1; want <= 3; want++ {
		got, err := rs.RecordLoginFailed(ctx, subject)
		if err != nil {
			t.Fatalf("RecordLoginFailed failed: %v", err)
		}
		if got != want {
			t.Fatalf("fail count = %d, want %d", got, want)
		}
	}

	if wait, err := rs.LoginWaitSeconds(ctx, subject); err != nil || wait != 0 {
		t.Fatalf("expected no cooldown before StartCooldown, got %d (%v)", wait, err)
	}

	if err := rs.StartCooldown(ctx, subject, 8*time.Second); err != nil {
		t.Fatalf("StartCooldown failed: %v", err)
	}
	wait, err := rs.LoginWaitSeconds(ctx, subject)
	if err != nil {
		t.Fatalf("LoginWaitSeconds failed: %v", err)
	}
	if wait < 1 || wait > 8 {
		t.Fatalf("wait = %d, want within (0, 8]", wait)
	}

	s.FastForward(9 * time.Second)
	if wait, err := rs.LoginWaitSeconds(ctx, subject); err != nil || wait != 0 {
		t.Fatalf("expected cooldown to lapse, got %d (%v)", wait, err)
	}

	if err := rs.StartCooldown(ctx, subject, 8*time.Second); err != nil {
		t.Fatalf("StartCooldown failed: %v", err)
	}
	if err := rs.RecordLoginSuccess(ctx, subject); err != nil {
		t.Fatalf("RecordLoginSuccess failed: %v", err)
	}
	if wait, err := rs.LoginWaitSeconds(ctx, subject); err != nil || wait != 0 {
		t.Fatalf("expected success to clear cooldown, got %d (%v)", wait, err)
	}
	if got, err := rs.RecordLoginFailed(ctx, subject); err != nil || got != 1 {
		t.Fatalf("expected fail count to restart at 1, got %d (%v)", got, err)
	}
}
