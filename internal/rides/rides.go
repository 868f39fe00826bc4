// Package rides mirrors Strava activities into local storage.
package rides

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/rideposter/internal/strava"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrRideNotFound is returned when the ride does not exist or belongs to someone else.
	ErrRideNotFound = errors.New("ride.not_found")
	// ErrRideClaimed is returned when the Strava activity is already mirrored for another user.
	ErrRideClaimed = errors.New("ride.claimed")
	// ErrStorageUnavailable wraps failures of the backing store.
	ErrStorageUnavailable = errors.New("storage.unavailable")
)

// Ride is a locally persisted activity.
type Ride struct {
	ID                 uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID             string    `gorm:"column:user_id;index;not null" json:"user_id"`
	StravaActivityID   int64     `gorm:"column:strava_activity_id;uniqueIndex;not null" json:"strava_activity_id"`
	Name               string    `gorm:"column:name;not null" json:"name"`
	Distance           float64   `gorm:"column:distance;not null" json:"distance"`
	MovingTime         int64     `gorm:"column:moving_time;not null" json:"moving_time"`
	TotalElevationGain float64   `gorm:"column:total_elevation_gain;not null;default:0" json:"total_elevation_gain"`
	StartDateLocal     time.Time `gorm:"column:start_date_local;index" json:"start_date_local"`
	Polyline           string    `gorm:"column:polyline;type:text" json:"polyline"`
	SummaryPolyline    string    `gorm:"column:summary_polyline;type:text" json:"summary_polyline"`
	SportType          string    `gorm:"column:sport_type;not null" json:"sport_type"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Ride) TableName() string {
	return "rides"
}

// IsMappable reports whether an activity can back a poster: it needs a route and a positive distance.
func IsMappable(activity strava.Activity) bool {
	return activity.HasRoute() && activity.Distance > 0
}

// FromActivity builds the ride row for a user's activity.
func FromActivity(userID string, activity strava.Activity) Ride {
	return Ride{
		UserID:             userID,
		StravaActivityID:   activity.ID,
		Name:               activity.Name,
		Distance:           activity.Distance,
		MovingTime:         activity.MovingTime,
		TotalElevationGain: activity.TotalElevationGain,
		StartDateLocal:     activity.StartDateLocal,
		Polyline:           activity.Polyline,
		SummaryPolyline:    activity.SummaryPolyline,
		SportType:          activity.SportType,
	}
}

// Store persists rides through GORM.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore migrates the rides table and returns the store.
func NewStore(ctx context.Context, db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("rides.new: nil database")
	}
	if err := db.WithContext(ctx).AutoMigrate(&Ride{}); err != nil {
		return nil, fmt.Errorf("rides.migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Upsert inserts the ride or overwrites the mutable fields of the row with the same Strava activity id.
// A row owned by another user is left untouched and reported as ErrRideClaimed.
func (store *Store) Upsert(ctx context.Context, ride Ride) error {
	if strings.TrimSpace(ride.UserID) == "" || ride.StravaActivityID <= 0 {
		return errors.New("rides.upsert: user id and strava activity id must be provided")
	}
	now := store.now()
	ride.ID = 0
	ride.CreatedAt = now
	ride.UpdatedAt = now
	result := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "strava_activity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "distance", "moving_time", "total_elevation_gain", "sport_type", "updated_at"}),
		Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "rides.user_id = excluded.user_id"}}},
	}).Create(&ride)
	if result.Error != nil {
		return fmt.Errorf("rides.upsert: %w: %v", ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rides.upsert: %w", ErrRideClaimed)
	}
	return nil
}

// ListByUser returns the user's rides, newest first.
func (store *Store) ListByUser(ctx context.Context, userID string) ([]Ride, error) {
	rides := make([]Ride, 0)
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date_local DESC").
		Order("id DESC").
		Find(&rides).Error
	if err != nil {
		return nil, fmt.Errorf("rides.list: %w: %v", ErrStorageUnavailable, err)
	}
	return rides, nil
}

// Get returns one ride owned by the user.
func (store *Store) Get(ctx context.Context, userID string, rideID uint) (Ride, error) {
	var ride Ride
	err := store.db.WithContext(ctx).Where("id = ? AND user_id = ?", rideID, userID).Take(&ride).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Ride{}, fmt.Errorf("rides.get: %w", ErrRideNotFound)
		}
		return Ride{}, fmt.Errorf("rides.get: %w: %v", ErrStorageUnavailable, err)
	}
	return ride, nil
}

// GetByStravaID returns the ride mirrored from the given Strava activity.
func (store *Store) GetByStravaID(ctx context.Context, userID string, stravaActivityID int64) (Ride, error) {
	var ride Ride
	err := store.db.WithContext(ctx).Where("strava_activity_id = ? AND user_id = ?", stravaActivityID, userID).Take(&ride).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Ride{}, fmt.Errorf("rides.get: %w", ErrRideNotFound)
		}
		return Ride{}, fmt.Errorf("rides.get: %w: %v", ErrStorageUnavailable, err)
	}
	return ride, nil
}
