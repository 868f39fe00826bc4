package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tyemirov/rideposter/internal/database/databasetest"
)

func newTestRefreshStore(t *testing.T, clock Clock) *DatabaseRefreshTokenStore {
	t.Helper()
	store, err := NewDatabaseRefreshTokenStore(context.Background(), databasetest.Open(t), clock)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestDatabaseRefreshTokenStoreLifecycle(t *testing.T) {
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	store := newTestRefreshStore(t, clock)
	ctx := context.Background()

	expiry := clock.Now().Add(10 * time.Minute).Unix()
	tokenID, opaqueToken, issueErr := store.Issue(ctx, "user-123", expiry, "")
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}
	if tokenID == "" || opaqueToken == "" {
		t.Fatalf("expected non-empty token id and opaque token")
	}

	applicationUserID, storedTokenID, expiresUnix, validateErr := store.Validate(ctx, opaqueToken)
	if validateErr != nil {
		t.Fatalf("validate error: %v", validateErr)
	}
	if applicationUserID != "user-123" || storedTokenID != tokenID || expiresUnix != expiry {
		t.Fatalf("unexpected validation result %s %s %d", applicationUserID, storedTokenID, expiresUnix)
	}

	rotatedID, _, rotateErr := store.Issue(ctx, "user-123", expiry, tokenID)
	if rotateErr != nil {
		t.Fatalf("rotate error: %v", rotateErr)
	}
	var rotated refreshTokenRecord
	if err := store.db.Where("token_id = ?", rotatedID).Take(&rotated).Error; err != nil {
		t.Fatalf("load rotated: %v", err)
	}
	if rotated.PreviousTokenID != tokenID {
		t.Fatalf("expected rotation chain to %s, got %s", tokenID, rotated.PreviousTokenID)
	}

	if err := store.Revoke(ctx, tokenID); err != nil {
		t.Fatalf("revoke error: %v", err)
	}
	if _, _, _, err := store.Validate(ctx, opaqueToken); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
	}
	if err := store.Revoke(ctx, tokenID); !errors.Is(err, ErrRefreshTokenAlreadyRevoked) {
		t.Fatalf("expected ErrRefreshTokenAlreadyRevoked, got %v", err)
	}
}

func TestDatabaseRefreshTokenStoreSentinelErrors(t *testing.T) {
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	store := newTestRefreshStore(t, clock)
	ctx := context.Background()

	if _, _, _, err := store.Validate(ctx, ""); !errors.Is(err, ErrRefreshTokenEmptyOpaque) {
		t.Fatalf("expected ErrRefreshTokenEmptyOpaque, got %v", err)
	}
	if _, _, _, err := store.Validate(ctx, "missing"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
	}
	if err := store.Revoke(ctx, "missing-token"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected ErrRefreshTokenNotFound when revoking missing token, got %v", err)
	}

	_, opaque, issueErr := store.Issue(ctx, "user", clock.Now().Add(time.Minute).Unix(), "")
	if issueErr != nil {
		t.Fatalf("issue failed: %v", issueErr)
	}
	clock.Advance(2 * time.Minute)
	if _, _, _, err := store.Validate(ctx, opaque); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}
}
