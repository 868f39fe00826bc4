package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// DatabaseRefreshTokenStore persists rotating login refresh tokens on the shared database.
type DatabaseRefreshTokenStore struct {
	db    *gorm.DB
	clock Clock
}

type refreshTokenRecord struct {
	TokenID         string `gorm:"column:token_id;primaryKey"`
	UserID          string `gorm:"column:user_id;index;not null"`
	TokenHash       string `gorm:"column:token_hash;uniqueIndex;not null"`
	ExpiresUnix     int64  `gorm:"column:expires_unix;not null"`
	RevokedAtUnix   int64  `gorm:"column:revoked_at_unix;not null;default:0"`
	PreviousTokenID string `gorm:"column:previous_token_id;not null;default:''"`
	IssuedAtUnix    int64  `gorm:"column:issued_at_unix;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

// NewDatabaseRefreshTokenStore migrates the refresh token table and returns the store.
func NewDatabaseRefreshTokenStore(ctx context.Context, db *gorm.DB, clock Clock) (*DatabaseRefreshTokenStore, error) {
	if db == nil {
		return nil, errors.New("refresh_store.new: nil database")
	}
	if clock == nil {
		clock = systemClock{}
	}
	if err := db.WithContext(ctx).AutoMigrate(&refreshTokenRecord{}); err != nil {
		return nil, fmt.Errorf("refresh_store.migrate: %w", err)
	}
	return &DatabaseRefreshTokenStore{db: db, clock: clock}, nil
}

// Issue inserts a new refresh token, optionally chained to the token it replaces.
func (store *DatabaseRefreshTokenStore) Issue(ctx context.Context, applicationUserID string, expiresUnix int64, previousTokenID string) (string, string, error) {
	material, mintErr := mintRefreshMaterial()
	if mintErr != nil {
		return "", "", fmt.Errorf("refresh_store.issue: %w", mintErr)
	}
	record := refreshTokenRecord{
		TokenID:         material.TokenID,
		UserID:          applicationUserID,
		TokenHash:       material.Digest,
		ExpiresUnix:     expiresUnix,
		PreviousTokenID: previousTokenID,
		IssuedAtUnix:    store.clock.Now().Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", "", fmt.Errorf("refresh_store.issue: %w", err)
	}
	return record.TokenID, material.Secret, nil
}

// Validate locates a live refresh token by its opaque value.
func (store *DatabaseRefreshTokenStore) Validate(ctx context.Context, tokenOpaque string) (string, string, int64, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", "", 0, fmt.Errorf("refresh_store.validate: %w", ErrRefreshTokenEmptyOpaque)
	}
	var record refreshTokenRecord
	err := store.db.WithContext(ctx).Where("token_hash = ?", digestRefreshSecret(tokenOpaque)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", 0, fmt.Errorf("refresh_store.validate: %w", ErrRefreshTokenNotFound)
		}
		return "", "", 0, fmt.Errorf("refresh_store.validate: %w", err)
	}
	if record.RevokedAtUnix != 0 {
		return "", "", 0, fmt.Errorf("refresh_store.validate: %w", ErrRefreshTokenRevoked)
	}
	if record.ExpiresUnix < store.clock.Now().Unix() {
		return "", "", 0, fmt.Errorf("refresh_store.validate: %w", ErrRefreshTokenExpired)
	}
	return record.UserID, record.TokenID, record.ExpiresUnix, nil
}

// Revoke marks a refresh token as revoked.
func (store *DatabaseRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	result := store.db.WithContext(ctx).Model(&refreshTokenRecord{}).
		Where("token_id = ? AND revoked_at_unix = 0", tokenID).
		Update("revoked_at_unix", store.clock.Now().Unix())
	if result.Error != nil {
		return fmt.Errorf("refresh_store.revoke: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var record refreshTokenRecord
	findErr := store.db.WithContext(ctx).Where("token_id = ?", tokenID).Take(&record).Error
	switch {
	case errors.Is(findErr, gorm.ErrRecordNotFound):
		return fmt.Errorf("refresh_store.revoke: %w", ErrRefreshTokenNotFound)
	case findErr != nil:
		return fmt.Errorf("refresh_store.revoke: %w", findErr)
	default:
		return fmt.Errorf("refresh_store.revoke: %w", ErrRefreshTokenAlreadyRevoked)
	}
}
