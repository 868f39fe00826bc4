package credentialpg

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tyemirov/rideposter/internal/credentials"
)

const postgresURLEnv = "APP_TEST_POSTGRES_URL"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv(postgresURLEnv)
	if databaseURL == "" {
		t.Skipf("%s not set", postgresURLEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := BuildPool(ctx, databaseURL)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if schemaErr := EnsureSchema(ctx, pool); schemaErr != nil {
		t.Fatalf("schema: %v", schemaErr)
	}
	return NewStore(pool)
}

func TestStoreLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := "pg-" + time.Now().UTC().Format("150405.000000000")

	if _, found, err := store.Get(ctx, userID); err != nil || found {
		t.Fatalf("expected absent credential, found=%v err=%v", found, err)
	}
	first := credentials.Credential{ProviderUserID: "42", AccessToken: "A1", RefreshToken: "R1", ExpiresAt: 100}
	if err := store.Set(ctx, userID, first); err != nil {
		t.Fatalf("set: %v", err)
	}
	second := credentials.Credential{ProviderUserID: "42", AccessToken: "A2", RefreshToken: "R2", ExpiresAt: 200}
	if err := store.Set(ctx, userID, second); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, found, err := store.Get(ctx, userID)
	if err != nil || !found || got != second {
		t.Fatalf("expected %+v, got %+v found=%v err=%v", second, got, found, err)
	}
	if err := store.Clear(ctx, userID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := store.Get(ctx, userID); found {
		t.Fatalf("expected absent after clear")
	}
}

func TestStoreRejectsInvalidCredentialWithoutDatabase(t *testing.T) {
	store := NewStore(nil)
	err := store.Set(context.Background(), "user-1", credentials.Credential{AccessToken: "A"})
	if !errors.Is(err, credentials.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, _, getErr := store.Get(context.Background(), " "); !errors.Is(getErr, credentials.ErrEmptyUserID) {
		t.Fatalf("expected ErrEmptyUserID, got %v", getErr)
	}
}
