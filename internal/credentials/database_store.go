package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type credentialRecord struct {
	UserID         string    `gorm:"column:user_id;primaryKey"`
	ProviderUserID string    `gorm:"column:provider_user_id;not null;default:''"`
	AccessToken    string    `gorm:"column:access_token;not null"`
	RefreshToken   string    `gorm:"column:refresh_token;not null;default:''"`
	ExpiresAt      int64     `gorm:"column:expires_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (credentialRecord) TableName() string {
	return "strava_credentials"
}

// DatabaseStore persists credentials through GORM.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore migrates the credential table and returns the store.
func NewDatabaseStore(ctx context.Context, db *gorm.DB) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("credentials.new: nil database")
	}
	if err := db.WithContext(ctx).AutoMigrate(&credentialRecord{}); err != nil {
		return nil, fmt.Errorf("credentials.migrate: %w", err)
	}
	return &DatabaseStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (store *DatabaseStore) Get(ctx context.Context, userID string) (Credential, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return Credential{}, false, fmt.Errorf("credentials.get: %w", ErrEmptyUserID)
	}
	var record credentialRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("credentials.get: %w: %v", ErrStorageUnavailable, err)
	}
	return Credential{
		ProviderUserID: record.ProviderUserID,
		AccessToken:    record.AccessToken,
		RefreshToken:   record.RefreshToken,
		ExpiresAt:      record.ExpiresAt,
	}, true, nil
}

func (store *DatabaseStore) Set(ctx context.Context, userID string, credential Credential) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credentials.set: %w", ErrEmptyUserID)
	}
	if err := credential.Validate(); err != nil {
		return fmt.Errorf("credentials.set: %w: %v", ErrInvalidCredential, err)
	}
	record := credentialRecord{
		UserID:         userID,
		ProviderUserID: credential.ProviderUserID,
		AccessToken:    credential.AccessToken,
		RefreshToken:   credential.RefreshToken,
		ExpiresAt:      credential.ExpiresAt,
		UpdatedAt:      store.now(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider_user_id", "access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("credentials.set: %w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (store *DatabaseStore) Clear(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credentials.clear: %w", ErrEmptyUserID)
	}
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&credentialRecord{}).Error
	if err != nil {
		return fmt.Errorf("credentials.clear: %w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
