// Package accounts persists application users created from Google sign-ins.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUserNotFound is returned when no user matches the identifier.
	ErrUserNotFound = errors.New("accounts.user_not_found")
	// ErrEmptyGoogleSubject rejects upserts without a Google subject.
	ErrEmptyGoogleSubject = errors.New("accounts.empty_google_sub")
)

const defaultRole = "user"

// User is an application account owned by one Google identity.
type User struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	GoogleSub   string    `gorm:"column:google_sub;uniqueIndex;not null" json:"-"`
	Email       string    `gorm:"column:email;not null" json:"email"`
	DisplayName string    `gorm:"column:display_name;not null;default:''" json:"display_name"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Roles returns the roles granted to every account.
func (User) Roles() []string {
	return []string{defaultRole}
}

// DatabaseUserStore keeps users in the shared relational database.
type DatabaseUserStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseUserStore migrates the users table and returns the store.
func NewDatabaseUserStore(ctx context.Context, db *gorm.DB) (*DatabaseUserStore, error) {
	if db == nil {
		return nil, errors.New("accounts.new: nil database")
	}
	if err := db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("accounts.migrate: %w", err)
	}
	return &DatabaseUserStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// UpsertGoogleUser creates the account on first login and refreshes email and name afterwards.
func (store *DatabaseUserStore) UpsertGoogleUser(ctx context.Context, googleSub string, userEmail string, userDisplayName string) (string, []string, error) {
	if strings.TrimSpace(googleSub) == "" {
		return "", nil, fmt.Errorf("accounts.upsert: %w", ErrEmptyGoogleSubject)
	}
	now := store.now()
	candidate := User{
		ID:          uuid.NewString(),
		GoogleSub:   googleSub,
		Email:       userEmail,
		DisplayName: userDisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "google_sub"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "updated_at"}),
	}).Create(&candidate).Error
	if err != nil {
		return "", nil, fmt.Errorf("accounts.upsert: %w", err)
	}
	var stored User
	if err := store.db.WithContext(ctx).Where("google_sub = ?", googleSub).Take(&stored).Error; err != nil {
		return "", nil, fmt.Errorf("accounts.upsert.reload: %w", err)
	}
	return stored.ID, stored.Roles(), nil
}

// GetUserProfile returns the profile fields used when minting sessions.
func (store *DatabaseUserStore) GetUserProfile(ctx context.Context, applicationUserID string) (string, string, []string, error) {
	user, err := store.Get(ctx, applicationUserID)
	if err != nil {
		return "", "", nil, err
	}
	return user.Email, user.DisplayName, user.Roles(), nil
}

// Get loads a user by application id.
func (store *DatabaseUserStore) Get(ctx context.Context, applicationUserID string) (User, error) {
	var user User
	err := store.db.WithContext(ctx).Where("id = ?", applicationUserID).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("accounts.get: %w", ErrUserNotFound)
		}
		return User{}, fmt.Errorf("accounts.get: %w", err)
	}
	return user, nil
}
