package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tyemirov/rideposter/internal/database/databasetest"
)

func newTestStore(t *testing.T) *DatabaseUserStore {
	t.Helper()
	store, err := NewDatabaseUserStore(context.Background(), databasetest.Open(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestUpsertGoogleUserCreatesOnFirstLogin(t *testing.T) {
	store := newTestStore(t)

	userID, roles, err := store.UpsertGoogleUser(context.Background(), "sub-1", "rider@example.com", "Rider")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if userID == "" {
		t.Fatalf("expected application user id")
	}
	if len(roles) != 1 || roles[0] != "user" {
		t.Fatalf("unexpected roles %v", roles)
	}

	email, display, _, profileErr := store.GetUserProfile(context.Background(), userID)
	if profileErr != nil {
		t.Fatalf("profile: %v", profileErr)
	}
	if email != "rider@example.com" || display != "Rider" {
		t.Fatalf("unexpected profile %q %q", email, display)
	}
}

func TestUpsertGoogleUserKeepsIdentityAcrossLogins(t *testing.T) {
	store := newTestStore(t)
	store.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	firstID, _, err := store.UpsertGoogleUser(context.Background(), "sub-2", "old@example.com", "Old Name")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	store.now = func() time.Time { return time.Unix(1700003600, 0).UTC() }
	secondID, _, err := store.UpsertGoogleUser(context.Background(), "sub-2", "new@example.com", "New Name")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("expected stable id, got %s then %s", firstID, secondID)
	}

	user, getErr := store.Get(context.Background(), secondID)
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if user.Email != "new@example.com" || user.DisplayName != "New Name" {
		t.Fatalf("expected refreshed profile, got %+v", user)
	}
	if !user.UpdatedAt.After(user.CreatedAt) {
		t.Fatalf("expected updated_at to advance, created=%v updated=%v", user.CreatedAt, user.UpdatedAt)
	}
}

func TestUpsertGoogleUserRejectsEmptySubject(t *testing.T) {
	store := newTestStore(t)
	if _, _, err := store.UpsertGoogleUser(context.Background(), " ", "x@example.com", "X"); !errors.Is(err, ErrEmptyGoogleSubject) {
		t.Fatalf("expected ErrEmptyGoogleSubject, got %v", err)
	}
}

func TestGetMissingUser(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, _, _, err := store.GetUserProfile(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound from profile, got %v", err)
	}
}
