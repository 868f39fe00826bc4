// Package credentials stores the Strava OAuth credential held for each user.
//
// A user has at most one credential. Writers replace it in a single row upsert so a
// reader never sees a new access token paired with an old refresh token or expiry.
package credentials

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrStorageUnavailable wraps every failure of the backing store.
	ErrStorageUnavailable = errors.New("storage.unavailable")
	// ErrInvalidCredential rejects writes that break the credential invariant.
	ErrInvalidCredential = errors.New("credentials.invalid")
	// ErrEmptyUserID rejects operations without a user identifier.
	ErrEmptyUserID = errors.New("credentials.empty_user_id")
)

// Credential is the provider access held on behalf of one user.
type Credential struct {
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	// ExpiresAt is the access token expiry in epoch seconds.
	ExpiresAt int64
}

// Validate enforces that an access token always carries an expiry.
func (credential Credential) Validate() error {
	if strings.TrimSpace(credential.AccessToken) == "" {
		return errors.New("credentials.invalid: access token must be provided")
	}
	if credential.ExpiresAt <= 0 {
		return errors.New("credentials.invalid: expiry must accompany the access token")
	}
	return nil
}

// Expired reports whether the access token is unusable at nowUnix.
func (credential Credential) Expired(nowUnix int64) bool {
	return nowUnix >= credential.ExpiresAt
}

// Store is the per-user credential persistence contract.
type Store interface {
	// Get returns the credential and true, or false when the user has none.
	Get(ctx context.Context, userID string) (Credential, bool, error)
	// Set atomically replaces the user's credential.
	Set(ctx context.Context, userID string, credential Credential) error
	// Clear removes the credential; later Get calls report it absent.
	Clear(ctx context.Context, userID string) error
}
