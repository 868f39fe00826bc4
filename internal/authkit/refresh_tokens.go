package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

var (
	// ErrRefreshTokenNotFound means no stored token matches the presented secret or id.
	ErrRefreshTokenNotFound = errors.New("refresh_token.not_found")
	// ErrRefreshTokenRevoked means the token was rotated away or logged out.
	ErrRefreshTokenRevoked = errors.New("refresh_token.revoked")
	// ErrRefreshTokenExpired means the token outlived its refresh TTL.
	ErrRefreshTokenExpired = errors.New("refresh_token.expired")
	// ErrRefreshTokenAlreadyRevoked is returned by a second revoke of the same token.
	ErrRefreshTokenAlreadyRevoked = errors.New("refresh_token.already_revoked")
	// ErrRefreshTokenEmptyOpaque rejects a blank cookie value.
	ErrRefreshTokenEmptyOpaque = errors.New("refresh_token.empty")
)

const refreshSecretBytes = 32

// refreshEntropy is swapped in tests.
var refreshEntropy io.Reader = rand.Reader

// refreshMaterial is a freshly minted refresh token. Only Digest is persisted;
// Secret goes to the client cookie.
type refreshMaterial struct {
	TokenID string
	Secret  string
	Digest  string
}

func mintRefreshMaterial() (refreshMaterial, error) {
	buffer := make([]byte, refreshSecretBytes)
	if _, err := io.ReadFull(refreshEntropy, buffer); err != nil {
		return refreshMaterial{}, fmt.Errorf("refresh_token.entropy: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buffer)
	return refreshMaterial{
		TokenID: uuid.NewString(),
		Secret:  secret,
		Digest:  digestRefreshSecret(secret),
	}, nil
}

func digestRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
