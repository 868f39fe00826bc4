package strava

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	DefaultActivityName = "Untitled Activity"
	DefaultSportType    = "Ride"
)

// Activity is a provider activity after schema validation and coercion.
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	StartDateLocal     time.Time `json:"start_date_local"`
	SportType          string    `json:"sport_type"`
	Polyline           string    `json:"polyline"`
	SummaryPolyline    string    `json:"summary_polyline"`
}

// HasRoute reports whether any encoded route is present.
func (activity Activity) HasRoute() bool {
	return strings.TrimSpace(activity.Polyline) != "" || strings.TrimSpace(activity.SummaryPolyline) != ""
}

// ActivityPage is one decoded page of activity summaries.
type ActivityPage struct {
	Activities []Activity
	// Dropped counts elements rejected by the schema, such as those without an id.
	Dropped int
}

type activityMapPayload struct {
	Polyline        *string `json:"polyline"`
	SummaryPolyline *string `json:"summary_polyline"`
}

type activityPayload struct {
	ID                 *int64              `json:"id"`
	Name               *string             `json:"name"`
	Distance           *float64            `json:"distance"`
	MovingTime         *float64            `json:"moving_time"`
	TotalElevationGain *float64            `json:"total_elevation_gain"`
	StartDateLocal     *string             `json:"start_date_local"`
	SportType          *string             `json:"sport_type"`
	Type               *string             `json:"type"`
	Map                *activityMapPayload `json:"map"`
}

func decodeActivityPage(body []byte, fetchedAt time.Time) (ActivityPage, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return ActivityPage{}, fmt.Errorf("%w: activities: %v", ErrMalformedResponse, err)
	}
	page := ActivityPage{Activities: make([]Activity, 0, len(elements))}
	for _, element := range elements {
		activity, err := decodeActivity(element, fetchedAt)
		if err != nil {
			page.Dropped++
			continue
		}
		page.Activities = append(page.Activities, activity)
	}
	return page, nil
}

func decodeActivity(body []byte, fetchedAt time.Time) (Activity, error) {
	var payload activityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Activity{}, fmt.Errorf("%w: activity: %v", ErrMalformedResponse, err)
	}
	if payload.ID == nil || *payload.ID <= 0 {
		return Activity{}, fmt.Errorf("%w: activity id missing", ErrMalformedResponse)
	}
	activity := Activity{
		ID:                 *payload.ID,
		Name:               DefaultActivityName,
		SportType:          DefaultSportType,
		Distance:           nonNegative(payload.Distance),
		MovingTime:         int64(math.Round(nonNegative(payload.MovingTime))),
		TotalElevationGain: valueOrZero(payload.TotalElevationGain),
		StartDateLocal:     fetchedAt.UTC(),
	}
	if payload.Name != nil && strings.TrimSpace(*payload.Name) != "" {
		activity.Name = *payload.Name
	}
	switch {
	case payload.SportType != nil && strings.TrimSpace(*payload.SportType) != "":
		activity.SportType = *payload.SportType
	case payload.Type != nil && strings.TrimSpace(*payload.Type) != "":
		activity.SportType = *payload.Type
	}
	if payload.StartDateLocal != nil {
		if parsed, err := time.Parse(time.RFC3339, *payload.StartDateLocal); err == nil {
			activity.StartDateLocal = parsed.UTC()
		}
	}
	if payload.Map != nil {
		if payload.Map.Polyline != nil {
			activity.Polyline = *payload.Map.Polyline
		}
		if payload.Map.SummaryPolyline != nil {
			activity.SummaryPolyline = *payload.Map.SummaryPolyline
		}
	}
	return activity, nil
}

func nonNegative(value *float64) float64 {
	if value == nil || *value < 0 || math.IsNaN(*value) {
		return 0
	}
	return *value
}

func valueOrZero(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}
