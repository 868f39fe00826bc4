package strava

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		ClientID:     "client-123",
		ClientSecret: "secret-xyz",
		RedirectURL:  "https://rides.example.com/strava/callback",
		AuthURL:      server.URL + "/oauth/authorize",
		TokenURL:     server.URL + "/oauth/token",
		APIBaseURL:   server.URL + "/api/v3/",
		HTTPClient:   server.Client(),
		Limiter:      rate.NewLimiter(rate.Inf, 1),
		Now:          func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{ClientSecret: "secret"})
	require.Error(t, err)
	_, err = NewClient(Config{ClientID: "id"})
	require.Error(t, err)
}

func TestAuthorizeURL(t *testing.T) {
	client, err := NewClient(Config{ClientID: "client-123", ClientSecret: "secret", RedirectURL: "https://rides.example.com/cb"})
	require.NoError(t, err)

	parsed, err := url.Parse(client.AuthorizeURL("state-abc"))
	require.NoError(t, err)
	require.Equal(t, "www.strava.com", parsed.Host)
	require.Equal(t, "/oauth/authorize", parsed.Path)
	query := parsed.Query()
	require.Equal(t, "client-123", query.Get("client_id"))
	require.Equal(t, "code", query.Get("response_type"))
	require.Equal(t, "https://rides.example.com/cb", query.Get("redirect_uri"))
	require.Equal(t, "read,activity:read_all", query.Get("scope"))
	require.Equal(t, "force", query.Get("approval_prompt"))
	require.Equal(t, "state-abc", query.Get("state"))
}

func TestExchangeReadsProviderExpiryAndAthlete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, "/oauth/token", request.URL.Path)
		require.NoError(t, request.ParseForm())
		require.Equal(t, "authorization_code", request.PostForm.Get("grant_type"))
		require.Equal(t, "code-1", request.PostForm.Get("code"))
		require.Equal(t, "client-123", request.PostForm.Get("client_id"))
		require.Equal(t, "secret-xyz", request.PostForm.Get("client_secret"))
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  "A1",
			"refresh_token": "R1",
			"expires_at":    1709316000,
			"expires_in":    21600,
			"athlete":       map[string]any{"id": 987654},
		})
	}))
	defer server.Close()

	tokenSet, err := newTestClient(t, server).Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	require.Equal(t, TokenSet{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: 1709316000, AthleteID: "987654"}, tokenSet)
}

func TestRefreshFallsBackToExpiresIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.NoError(t, request.ParseForm())
		require.Equal(t, "refresh_token", request.PostForm.Get("grant_type"))
		require.Equal(t, "R1", request.PostForm.Get("refresh_token"))
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"token_type":"Bearer","access_token":"A2","refresh_token":"R2","expires_in":3600}`))
	}))
	defer server.Close()

	before := time.Now().Unix()
	tokenSet, err := newTestClient(t, server).Refresh(context.Background(), "R1")
	require.NoError(t, err)
	require.Equal(t, "A2", tokenSet.AccessToken)
	require.Equal(t, "R2", tokenSet.RefreshToken)
	require.GreaterOrEqual(t, tokenSet.ExpiresAt, before+3600-5)
	require.LessOrEqual(t, tokenSet.ExpiresAt, time.Now().Unix()+3600)
}

func TestRefreshRejectedByProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`{"message":"Bad Request","errors":[{"resource":"RefreshToken","code":"invalid"}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Refresh(context.Background(), "stale")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTokenRequest))
	var tokenError *TokenError
	require.True(t, errors.As(err, &tokenError))
	require.Equal(t, http.StatusBadRequest, tokenError.Status)
}

func TestRefreshRequiresToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrTokenRequest)
	require.Zero(t, atomic.LoadInt32(&calls))
}

func TestListActivitiesDecodesSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, "/api/v3/athlete/activities", request.URL.Path)
		require.Equal(t, "50", request.URL.Query().Get("per_page"))
		require.Equal(t, "Bearer A1", request.Header.Get("Authorization"))
		_, _ = writer.Write([]byte(`[
			{"id": 555, "name": "Morning Ride", "distance": 42195.5, "moving_time": 5400, "total_elevation_gain": 310.2,
			 "start_date_local": "2024-02-28T07:30:00Z", "sport_type": "GravelRide", "map": {"summary_polyline": "abc"}},
			{"id": 777, "distance": -3, "moving_time": -1, "start_date_local": "yesterday", "type": "Run", "map": {}},
			{"name": "no id"},
			{"id": "not-a-number"}
		]`))
	}))
	defer server.Close()

	page, err := newTestClient(t, server).ListActivities(context.Background(), "A1", 50)
	require.NoError(t, err)
	require.Equal(t, 2, page.Dropped)
	require.Len(t, page.Activities, 2)

	first := page.Activities[0]
	require.Equal(t, int64(555), first.ID)
	require.Equal(t, "Morning Ride", first.Name)
	require.InDelta(t, 42195.5, first.Distance, 0.001)
	require.Equal(t, int64(5400), first.MovingTime)
	require.Equal(t, "GravelRide", first.SportType)
	require.Equal(t, time.Date(2024, time.February, 28, 7, 30, 0, 0, time.UTC), first.StartDateLocal)
	require.True(t, first.HasRoute())

	second := page.Activities[1]
	require.Equal(t, DefaultActivityName, second.Name)
	require.Zero(t, second.Distance)
	require.Zero(t, second.MovingTime)
	require.Equal(t, "Run", second.SportType)
	require.Equal(t, fixedNow, second.StartDateLocal)
	require.False(t, second.HasRoute())
}

func TestListActivitiesNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
		_, _ = writer.Write([]byte(`{"message":"Rate Limit Exceeded"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).ListActivities(context.Background(), "A1", 50)
	var apiError *APIError
	require.True(t, errors.As(err, &apiError))
	require.Equal(t, http.StatusTooManyRequests, apiError.Status)
}

func TestListActivitiesMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"unexpected": "object"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).ListActivities(context.Background(), "A1", 50)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGetActivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, "/api/v3/activities/555", request.URL.Path)
		_, _ = writer.Write([]byte(`{"id": 555, "distance": 1000, "map": {"polyline": "detailed", "summary_polyline": "short"}}`))
	}))
	defer server.Close()

	activity, err := newTestClient(t, server).GetActivity(context.Background(), "A1", 555)
	require.NoError(t, err)
	require.Equal(t, "detailed", activity.Polyline)
	require.Equal(t, "short", activity.SummaryPolyline)
	require.Equal(t, DefaultSportType, activity.SportType)
}

func TestListActivitiesKeepsDeadlineInChain(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-request.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, server).ListActivities(ctx, "A1", 50)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterWaitPastDeadlineReportsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		t.Errorf("unexpected request to %s", request.URL.Path)
	}))
	defer server.Close()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())
	client, err := NewClient(Config{
		ClientID:     "client-123",
		ClientSecret: "secret-xyz",
		TokenURL:     server.URL + "/oauth/token",
		APIBaseURL:   server.URL + "/api/v3",
		HTTPClient:   server.Client(),
		Limiter:      limiter,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = client.ListActivities(ctx, "A1", 50)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = client.Refresh(ctx, "R1")
	require.ErrorIs(t, err, ErrTokenRequest)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, server).GetActivity(ctx, "A1", 555)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, atomic.LoadInt32(&hits))
}
