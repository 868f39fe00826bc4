// Package posters stores poster styling configurations for a user's rides.
package posters

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrPosterNotFound is returned when the poster does not exist or belongs to someone else.
	ErrPosterNotFound = errors.New("poster.not_found")
	// ErrInvalidPoster is matched by every validation failure.
	ErrInvalidPoster = errors.New("poster.invalid")
	// ErrStorageUnavailable wraps failures of the backing store.
	ErrStorageUnavailable = errors.New("storage.unavailable")
)

const (
	MapStyleStandard  = "standard"
	MapStyleTerrain   = "terrain"
	MapStyleSatellite = "satellite"
	MapStyleDark      = "dark"

	LayoutPortrait  = "portrait"
	LayoutLandscape = "landscape"
	LayoutSquare    = "square"

	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"

	DefaultPrimaryColor   = "#ff6b35"
	DefaultSecondaryColor = "#2c3e50"

	maxNameLength        = 120
	maxCustomTitleLength = 200
)

var (
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

	mapStyles = map[string]struct{}{MapStyleStandard: {}, MapStyleTerrain: {}, MapStyleSatellite: {}, MapStyleDark: {}}
	layouts   = map[string]struct{}{LayoutPortrait: {}, LayoutLandscape: {}, LayoutSquare: {}}
	sizes     = map[string]struct{}{SizeSmall: {}, SizeMedium: {}, SizeLarge: {}}
)

// Poster is a saved styling configuration for one ride.
type Poster struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID         string    `gorm:"column:user_id;index;not null" json:"user_id"`
	RideID         uint      `gorm:"column:ride_id;index;not null" json:"ride_id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	MapStyle       string    `gorm:"column:map_style;not null" json:"map_style"`
	PrimaryColor   string    `gorm:"column:primary_color;not null" json:"primary_color"`
	SecondaryColor string    `gorm:"column:secondary_color;not null" json:"secondary_color"`
	Layout         string    `gorm:"column:layout;not null" json:"layout"`
	Size           string    `gorm:"column:size;not null" json:"size"`
	ShowStats      bool      `gorm:"column:show_stats;not null" json:"show_stats"`
	ShowElevation  bool      `gorm:"column:show_elevation;not null" json:"show_elevation"`
	CustomTitle    *string   `gorm:"column:custom_title" json:"custom_title"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Poster) TableName() string {
	return "posters"
}

// Summary is a poster joined with the ride it renders.
type Summary struct {
	Poster
	RideName      string    `json:"ride_name"`
	RideDistance  float64   `json:"ride_distance"`
	RideStartDate time.Time `json:"ride_start_date"`
}

// Draft carries the fields of a new poster; nil fields take defaults.
type Draft struct {
	RideID         uint    `json:"ride_id"`
	Name           string  `json:"name"`
	MapStyle       *string `json:"map_style"`
	PrimaryColor   *string `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color"`
	Layout         *string `json:"layout"`
	Size           *string `json:"size"`
	ShowStats      *bool   `json:"show_stats"`
	ShowElevation  *bool   `json:"show_elevation"`
	CustomTitle    *string `json:"custom_title"`
}

// Patch carries a partial update; only non-nil fields change.
type Patch struct {
	RideID         *uint   `json:"ride_id"`
	Name           *string `json:"name"`
	MapStyle       *string `json:"map_style"`
	PrimaryColor   *string `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color"`
	Layout         *string `json:"layout"`
	Size           *string `json:"size"`
	ShowStats      *bool   `json:"show_stats"`
	ShowElevation  *bool   `json:"show_elevation"`
	CustomTitle    *string `json:"custom_title"`
}

// Empty reports whether the patch changes nothing.
func (patch Patch) Empty() bool {
	return patch == Patch{}
}

// NewPoster applies defaults to the draft and validates the result.
func NewPoster(userID string, draft Draft) (Poster, error) {
	poster := Poster{
		UserID:         userID,
		RideID:         draft.RideID,
		Name:           strings.TrimSpace(draft.Name),
		MapStyle:       valueOr(draft.MapStyle, MapStyleStandard),
		PrimaryColor:   valueOr(draft.PrimaryColor, DefaultPrimaryColor),
		SecondaryColor: valueOr(draft.SecondaryColor, DefaultSecondaryColor),
		Layout:         valueOr(draft.Layout, LayoutPortrait),
		Size:           valueOr(draft.Size, SizeMedium),
		ShowStats:      boolOr(draft.ShowStats, true),
		ShowElevation:  boolOr(draft.ShowElevation, true),
		CustomTitle:    normalizeTitle(draft.CustomTitle),
	}
	if err := poster.Validate(); err != nil {
		return Poster{}, err
	}
	return poster, nil
}

// Apply returns a copy of the poster with the patch applied and validated.
func (poster Poster) Apply(patch Patch) (Poster, error) {
	updated := poster
	if patch.RideID != nil {
		updated.RideID = *patch.RideID
	}
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.MapStyle != nil {
		updated.MapStyle = normalizeChoice(*patch.MapStyle)
	}
	if patch.PrimaryColor != nil {
		updated.PrimaryColor = normalizeChoice(*patch.PrimaryColor)
	}
	if patch.SecondaryColor != nil {
		updated.SecondaryColor = normalizeChoice(*patch.SecondaryColor)
	}
	if patch.Layout != nil {
		updated.Layout = normalizeChoice(*patch.Layout)
	}
	if patch.Size != nil {
		updated.Size = normalizeChoice(*patch.Size)
	}
	if patch.ShowStats != nil {
		updated.ShowStats = *patch.ShowStats
	}
	if patch.ShowElevation != nil {
		updated.ShowElevation = *patch.ShowElevation
	}
	if patch.CustomTitle != nil {
		updated.CustomTitle = normalizeTitle(patch.CustomTitle)
	}
	if err := updated.Validate(); err != nil {
		return Poster{}, err
	}
	return updated, nil
}

// Validate checks enumerations, colors and lengths.
func (poster Poster) Validate() error {
	if poster.RideID == 0 {
		return invalid("ride_id must be provided")
	}
	if poster.Name == "" {
		return invalid("name must be provided")
	}
	if len(poster.Name) > maxNameLength {
		return invalid(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if _, ok := mapStyles[poster.MapStyle]; !ok {
		return invalid("map_style must be one of standard, terrain, satellite, dark")
	}
	if _, ok := layouts[poster.Layout]; !ok {
		return invalid("layout must be one of portrait, landscape, square")
	}
	if _, ok := sizes[poster.Size]; !ok {
		return invalid("size must be one of small, medium, large")
	}
	if !colorPattern.MatchString(poster.PrimaryColor) {
		return invalid("primary_color must be #rrggbb")
	}
	if !colorPattern.MatchString(poster.SecondaryColor) {
		return invalid("secondary_color must be #rrggbb")
	}
	if poster.CustomTitle != nil && len(*poster.CustomTitle) > maxCustomTitleLength {
		return invalid(fmt.Sprintf("custom_title must be at most %d characters", maxCustomTitleLength))
	}
	return nil
}

func invalid(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidPoster, message)
}

func valueOr(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return normalizeChoice(*value)
}

func normalizeChoice(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

// normalizeTitle maps blank titles to nil so the ride name is used.
func normalizeTitle(title *string) *string {
	if title == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*title)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
