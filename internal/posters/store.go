package posters

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyemirov/rideposter/internal/rides"
	"gorm.io/gorm"
)

// Store persists posters through GORM.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the posters table and returns the store.
func NewStore(ctx context.Context, db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("posters.new: nil database")
	}
	if err := db.WithContext(ctx).AutoMigrate(&Poster{}); err != nil {
		return nil, fmt.Errorf("posters.migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Create stores a new poster for a ride the user owns.
func (store *Store) Create(ctx context.Context, userID string, draft Draft) (Summary, error) {
	poster, err := NewPoster(userID, draft)
	if err != nil {
		return Summary{}, err
	}
	if ownErr := store.requireRide(ctx, userID, poster.RideID); ownErr != nil {
		return Summary{}, ownErr
	}
	if createErr := store.db.WithContext(ctx).Create(&poster).Error; createErr != nil {
		return Summary{}, fmt.Errorf("posters.create: %w: %v", ErrStorageUnavailable, createErr)
	}
	return store.Get(ctx, userID, poster.ID)
}

// List returns the user's posters with ride details, newest first.
func (store *Store) List(ctx context.Context, userID string) ([]Summary, error) {
	summaries := make([]Summary, 0)
	err := store.summaryQuery(ctx).
		Where("posters.user_id = ?", userID).
		Order("posters.created_at DESC").
		Order("posters.id DESC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("posters.list: %w: %v", ErrStorageUnavailable, err)
	}
	return summaries, nil
}

// Get returns one poster owned by the user.
func (store *Store) Get(ctx context.Context, userID string, posterID uint) (Summary, error) {
	summaries := make([]Summary, 0, 1)
	err := store.summaryQuery(ctx).
		Where("posters.id = ? AND posters.user_id = ?", posterID, userID).
		Limit(1).
		Scan(&summaries).Error
	if err != nil {
		return Summary{}, fmt.Errorf("posters.get: %w: %v", ErrStorageUnavailable, err)
	}
	if len(summaries) == 0 {
		return Summary{}, fmt.Errorf("posters.get: %w", ErrPosterNotFound)
	}
	return summaries[0], nil
}

// Update applies a partial patch to a poster owned by the user.
func (store *Store) Update(ctx context.Context, userID string, posterID uint, patch Patch) (Summary, error) {
	var existing Poster
	err := store.db.WithContext(ctx).Where("id = ? AND user_id = ?", posterID, userID).Take(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Summary{}, fmt.Errorf("posters.update: %w", ErrPosterNotFound)
		}
		return Summary{}, fmt.Errorf("posters.update: %w: %v", ErrStorageUnavailable, err)
	}
	updated, applyErr := existing.Apply(patch)
	if applyErr != nil {
		return Summary{}, applyErr
	}
	if updated.RideID != existing.RideID {
		if ownErr := store.requireRide(ctx, userID, updated.RideID); ownErr != nil {
			return Summary{}, ownErr
		}
	}
	if saveErr := store.db.WithContext(ctx).Save(&updated).Error; saveErr != nil {
		return Summary{}, fmt.Errorf("posters.update: %w: %v", ErrStorageUnavailable, saveErr)
	}
	return store.Get(ctx, userID, posterID)
}

// Delete removes a poster owned by the user.
func (store *Store) Delete(ctx context.Context, userID string, posterID uint) error {
	result := store.db.WithContext(ctx).Where("id = ? AND user_id = ?", posterID, userID).Delete(&Poster{})
	if result.Error != nil {
		return fmt.Errorf("posters.delete: %w: %v", ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("posters.delete: %w", ErrPosterNotFound)
	}
	return nil
}

func (store *Store) requireRide(ctx context.Context, userID string, rideID uint) error {
	var count int64
	err := store.db.WithContext(ctx).Model(&rides.Ride{}).Where("id = ? AND user_id = ?", rideID, userID).Count(&count).Error
	if err != nil {
		return fmt.Errorf("posters.ride_lookup: %w: %v", ErrStorageUnavailable, err)
	}
	if count == 0 {
		return fmt.Errorf("posters.ride_lookup: %w", rides.ErrRideNotFound)
	}
	return nil
}

func (store *Store) summaryQuery(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx).
		Table("posters").
		Select("posters.*, rides.name AS ride_name, rides.distance AS ride_distance, rides.start_date_local AS ride_start_date").
		Joins("JOIN rides ON rides.id = posters.ride_id")
}
