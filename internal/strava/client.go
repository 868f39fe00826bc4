// Package strava talks to the Strava OAuth and activity APIs.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultAuthURL    = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL   = "https://www.strava.com/oauth/token"
	DefaultAPIBaseURL = "https://www.strava.com/api/v3"

	// Scope is sent verbatim; Strava expects comma separated scopes.
	Scope = "read,activity:read_all"

	maxErrorBodyBytes = 4 << 10
)

var (
	// ErrTokenRequest marks a rejected or failed token endpoint call.
	ErrTokenRequest = errors.New("strava.token_request")
	// ErrMalformedResponse marks a provider body that does not match the expected schema.
	ErrMalformedResponse = errors.New("strava.malformed_response")
	// ErrTransport marks a request that never produced an HTTP response.
	ErrTransport = errors.New("strava.transport")
)

// APIError carries the status of a non-2xx API response.
type APIError struct {
	Status int
	Body   string
}

func (apiError *APIError) Error() string {
	return fmt.Sprintf("strava.api_status: %d", apiError.Status)
}

// TokenError wraps a token endpoint failure with its HTTP status when one was returned.
type TokenError struct {
	Status int
	Err    error
}

func (tokenError *TokenError) Error() string {
	if tokenError.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", ErrTokenRequest.Error(), tokenError.Status, tokenError.Err)
	}
	return fmt.Sprintf("%s: %v", ErrTokenRequest.Error(), tokenError.Err)
}

func (tokenError *TokenError) Unwrap() []error {
	return []error{ErrTokenRequest, tokenError.Err}
}

// Config describes the Strava application and its endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	Now          func() time.Time
}

// TokenSet is the result of a code or refresh-token exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the access token expiry in epoch seconds.
	ExpiresAt int64
	AthleteID string
}

// Client is a Strava API client safe for concurrent use.
type Client struct {
	oauthConfig oauth2.Config
	apiBaseURL  string
	httpClient  *http.Client
	limiter     *rate.Limiter
	now         func() time.Time
}

// NewClient validates the configuration and fills endpoint defaults.
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.ClientID) == "" {
		return nil, errors.New("strava.config: client id must be provided")
	}
	if strings.TrimSpace(config.ClientSecret) == "" {
		return nil, errors.New("strava.config: client secret must be provided")
	}
	authURL := firstNonEmpty(config.AuthURL, DefaultAuthURL)
	tokenURL := firstNonEmpty(config.TokenURL, DefaultTokenURL)
	apiBaseURL := strings.TrimRight(firstNonEmpty(config.APIBaseURL, DefaultAPIBaseURL), "/")
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	limiter := config.Limiter
	if limiter == nil {
		// Strava's default application budget is 100 requests per 15 minutes.
		limiter = rate.NewLimiter(rate.Every(15*time.Minute/100), 100)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		oauthConfig: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: apiBaseURL,
		httpClient: httpClient,
		limiter:    limiter,
		now:        now,
	}, nil
}

// AuthorizeURL returns the consent page URL carrying the given state.
func (client *Client) AuthorizeURL(state string) string {
	return client.oauthConfig.AuthCodeURL(state,
		oauth2.SetAuthURLParam("scope", Scope),
		oauth2.SetAuthURLParam("approval_prompt", "force"),
	)
}

// Exchange trades an authorization code for tokens.
func (client *Client) Exchange(ctx context.Context, code string) (TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return TokenSet{}, &TokenError{Err: errors.New("authorization code must be provided")}
	}
	if err := client.wait(ctx); err != nil {
		return TokenSet{}, &TokenError{Err: err}
	}
	token, err := client.oauthConfig.Exchange(client.oauthContext(ctx), code)
	if err != nil {
		return TokenSet{}, toTokenError(err)
	}
	return client.tokenSetFrom(token), nil
}

// Refresh trades a refresh token for a new access token.
func (client *Client) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenSet{}, &TokenError{Err: errors.New("refresh token must be provided")}
	}
	if err := client.wait(ctx); err != nil {
		return TokenSet{}, &TokenError{Err: err}
	}
	// An empty access token is never valid, so the source always hits the token endpoint.
	source := client.oauthConfig.TokenSource(client.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return TokenSet{}, toTokenError(err)
	}
	return client.tokenSetFrom(token), nil
}

// ListActivities fetches the most recent page of the athlete's activities.
func (client *Client) ListActivities(ctx context.Context, accessToken string, perPage int) (ActivityPage, error) {
	if perPage <= 0 {
		perPage = 50
	}
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(perPage))
	body, err := client.get(ctx, accessToken, "/athlete/activities?"+query.Encode())
	if err != nil {
		return ActivityPage{}, err
	}
	return decodeActivityPage(body, client.now())
}

// GetActivity fetches the detailed representation of one activity.
func (client *Client) GetActivity(ctx context.Context, accessToken string, activityID int64) (Activity, error) {
	body, err := client.get(ctx, accessToken, "/activities/"+strconv.FormatInt(activityID, 10))
	if err != nil {
		return Activity{}, err
	}
	return decodeActivity(body, client.now())
}

func (client *Client) get(ctx context.Context, accessToken string, path string) ([]byte, error) {
	if err := client.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiBaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	request.Header.Set("Accept", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		return nil, &APIError{Status: response.StatusCode, Body: string(errorBody)}
	}
	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, readErr)
	}
	return body, nil
}

// wait reserves a limiter slot. A reservation that would overrun the deadline fails before the
// context expires, so that case is reported as context.DeadlineExceeded too.
func (client *Client) wait(ctx context.Context) error {
	err := client.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func (client *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
}

func (client *Client) tokenSetFrom(token *oauth2.Token) TokenSet {
	tokenSet := TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if expiresAt, ok := numericExtra(token.Extra("expires_at")); ok && expiresAt > 0 {
		tokenSet.ExpiresAt = expiresAt
	} else if !token.Expiry.IsZero() {
		tokenSet.ExpiresAt = token.Expiry.Unix()
	}
	if athlete, ok := token.Extra("athlete").(map[string]interface{}); ok {
		if athleteID, found := numericExtra(athlete["id"]); found {
			tokenSet.AthleteID = strconv.FormatInt(athleteID, 10)
		}
	}
	return tokenSet
}

func toTokenError(err error) error {
	var retrieveError *oauth2.RetrieveError
	if errors.As(err, &retrieveError) && retrieveError.Response != nil {
		return &TokenError{Status: retrieveError.Response.StatusCode, Err: err}
	}
	return &TokenError{Err: err}
}

func numericExtra(value interface{}) (int64, bool) {
	switch typed := value.(type) {
	case float64:
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		return parsed, err == nil
	case string:
		parsed, err := strconv.ParseInt(typed, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func firstNonEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
