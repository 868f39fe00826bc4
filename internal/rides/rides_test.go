package rides

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tyemirov/rideposter/internal/database/databasetest"
	"github.com/tyemirov/rideposter/internal/strava"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), databasetest.Open(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func sampleActivity(id int64) strava.Activity {
	return strava.Activity{
		ID:                 id,
		Name:               "Morning Ride",
		Distance:           12000,
		MovingTime:         1800,
		TotalElevationGain: 120,
		StartDateLocal:     time.Date(2024, time.February, 28, 7, 30, 0, 0, time.UTC),
		SportType:          "Ride",
		SummaryPolyline:    "abc",
	}
}

func TestIsMappable(t *testing.T) {
	testCases := []struct {
		name     string
		activity strava.Activity
		want     bool
	}{
		{name: "summary polyline and distance", activity: strava.Activity{ID: 1, Distance: 10, SummaryPolyline: "a"}, want: true},
		{name: "detailed polyline only", activity: strava.Activity{ID: 1, Distance: 10, Polyline: "a"}, want: true},
		{name: "no route", activity: strava.Activity{ID: 1, Distance: 10}, want: false},
		{name: "zero distance", activity: strava.Activity{ID: 1, SummaryPolyline: "a"}, want: false},
		{name: "whitespace route", activity: strava.Activity{ID: 1, Distance: 10, SummaryPolyline: "  "}, want: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := IsMappable(testCase.activity); got != testCase.want {
				t.Fatalf("IsMappable() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestUpsertIsIdempotentPerActivity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, FromActivity("user-1", sampleActivity(555))); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := store.GetByStravaID(ctx, "user-1", 555)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	renamed := sampleActivity(555)
	renamed.Name = "Renamed Ride"
	renamed.Distance = 12500
	renamed.SummaryPolyline = "changed"
	if err := store.Upsert(ctx, FromActivity("user-1", renamed)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, listErr := store.ListByUser(ctx, "user-1")
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one ride, got %d", len(all))
	}
	if all[0].ID != first.ID {
		t.Fatalf("expected local id %d to survive, got %d", first.ID, all[0].ID)
	}
	if all[0].Name != "Renamed Ride" || all[0].Distance != 12500 {
		t.Fatalf("expected overwritten fields, got %+v", all[0])
	}
	if all[0].SummaryPolyline != "abc" {
		t.Fatalf("route is kept from the first import, got %q", all[0].SummaryPolyline)
	}
}

func TestUpsertKeepsAnotherUsersRide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, FromActivity("user-1", sampleActivity(777))); err != nil {
		t.Fatalf("owner upsert: %v", err)
	}
	intruder := sampleActivity(777)
	intruder.Name = "Overwritten"
	intruder.Distance = 1
	err := store.Upsert(ctx, FromActivity("user-2", intruder))
	if !errors.Is(err, ErrRideClaimed) {
		t.Fatalf("expected ErrRideClaimed, got %v", err)
	}

	owned, getErr := store.GetByStravaID(ctx, "user-1", 777)
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if owned.Name != "Morning Ride" || owned.Distance != 12000 {
		t.Fatalf("expected owner's ride untouched, got %+v", owned)
	}
	others, listErr := store.ListByUser(ctx, "user-2")
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(others) != 0 {
		t.Fatalf("expected no rides for the second user, got %d", len(others))
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	older := sampleActivity(1)
	older.StartDateLocal = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleActivity(2)
	newer.StartDateLocal = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	other := sampleActivity(3)

	for _, ride := range []Ride{FromActivity("user-1", older), FromActivity("user-1", newer), FromActivity("user-2", other)} {
		if err := store.Upsert(ctx, ride); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	listed, err := store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].StravaActivityID != 2 || listed[1].StravaActivityID != 1 {
		t.Fatalf("unexpected order %+v", listed)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Upsert(ctx, FromActivity("user-1", sampleActivity(9))); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	owned, err := store.GetByStravaID(ctx, "user-1", 9)
	if err != nil {
		t.Fatalf("get by strava id: %v", err)
	}
	if _, err := store.Get(ctx, "user-1", owned.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := store.Get(ctx, "user-2", owned.ID); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound for another user, got %v", err)
	}
}

func TestUpsertRejectsMissingIdentifiers(t *testing.T) {
	store := newTestStore(t)
	if err := store.Upsert(context.Background(), Ride{UserID: "user-1"}); err == nil {
		t.Fatalf("expected error for missing activity id")
	}
}
