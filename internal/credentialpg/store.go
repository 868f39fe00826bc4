package credentialpg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/rideposter/internal/credentials"
)

// Store persists credentials in PostgreSQL through pgx.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Postgres credential store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ credentials.Store = (*Store)(nil)

func (store *Store) Get(ctx context.Context, userID string) (credentials.Credential, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return credentials.Credential{}, false, fmt.Errorf("credentialpg.get: %w", credentials.ErrEmptyUserID)
	}
	var credential credentials.Credential
	row := store.pool.QueryRow(ctx, `
SELECT provider_user_id, access_token, refresh_token, expires_at
FROM strava_credentials
WHERE user_id = $1
`, userID)
	scanErr := row.Scan(&credential.ProviderUserID, &credential.AccessToken, &credential.RefreshToken, &credential.ExpiresAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return credentials.Credential{}, false, nil
		}
		return credentials.Credential{}, false, fmt.Errorf("credentialpg.get: %w: %v", credentials.ErrStorageUnavailable, scanErr)
	}
	return credential, true, nil
}

func (store *Store) Set(ctx context.Context, userID string, credential credentials.Credential) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credentialpg.set: %w", credentials.ErrEmptyUserID)
	}
	if err := credential.Validate(); err != nil {
		return fmt.Errorf("credentialpg.set: %w: %v", credentials.ErrInvalidCredential, err)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO strava_credentials (user_id, provider_user_id, access_token, refresh_token, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (user_id) DO UPDATE
SET provider_user_id = EXCLUDED.provider_user_id,
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    expires_at = EXCLUDED.expires_at,
    updated_at = EXCLUDED.updated_at
`, userID, credential.ProviderUserID, credential.AccessToken, credential.RefreshToken, credential.ExpiresAt)
	if execErr != nil {
		return fmt.Errorf("credentialpg.set: %w: %v", credentials.ErrStorageUnavailable, execErr)
	}
	return nil
}

func (store *Store) Clear(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credentialpg.clear: %w", credentials.ErrEmptyUserID)
	}
	if _, err := store.pool.Exec(ctx, `DELETE FROM strava_credentials WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("credentialpg.clear: %w: %v", credentials.ErrStorageUnavailable, err)
	}
	return nil
}
