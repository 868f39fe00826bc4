// Package activitysync runs the sync pass that mirrors a user's recent Strava activities.
//
// A pass loads the stored credential, refreshes it when expired, fetches one bounded page of
// activities, keeps the mappable ones and upserts them by Strava activity id. Nothing is
// retried; the first failure ends the pass.
package activitysync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tyemirov/rideposter/internal/credentials"
	"github.com/tyemirov/rideposter/internal/rides"
	"github.com/tyemirov/rideposter/internal/strava"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPageSize            = 50
	DefaultDetailFallbackLimit = 5
	DefaultRefreshTimeout      = 15 * time.Second
)

// ActivityProvider is the subset of the Strava client used by a pass.
type ActivityProvider interface {
	Refresh(ctx context.Context, refreshToken string) (strava.TokenSet, error)
	ListActivities(ctx context.Context, accessToken string, perPage int) (strava.ActivityPage, error)
	GetActivity(ctx context.Context, accessToken string, activityID int64) (strava.Activity, error)
}

// RideWriter persists mappable activities.
type RideWriter interface {
	Upsert(ctx context.Context, ride rides.Ride) error
}

// MetricsRecorder receives pass outcomes.
type MetricsRecorder interface {
	RecordRefresh(outcome string)
	RecordSync(outcome string, result Result)
}

type noopMetrics struct{}

func (noopMetrics) RecordRefresh(string) {}

func (noopMetrics) RecordSync(string, Result) {}

// Result describes one completed pass.
type Result struct {
	// Activities are the mappable activities submitted for persistence.
	Activities []strava.Activity
	Fetched    int
	Dropped    int
	Valid      int
	Persisted  int
	Skipped    int
	Refreshed  bool
}

// Config wires a Service.
type Config struct {
	Credentials credentials.Store
	Provider    ActivityProvider
	Rides       RideWriter
	Logger      *zap.Logger
	Metrics     MetricsRecorder
	Clock       func() time.Time
	// PageSize bounds the single activities page; non-positive means DefaultPageSize.
	PageSize int
	// DetailFallbackLimit caps detail fetches when no summary is mappable; non-positive disables them.
	DetailFallbackLimit int
	// RefreshTimeout bounds the shared token refresh; non-positive means DefaultRefreshTimeout.
	RefreshTimeout time.Duration
}

// Service runs sync passes.
type Service struct {
	credentials         credentials.Store
	provider            ActivityProvider
	rides               RideWriter
	logger              *zap.Logger
	metrics             MetricsRecorder
	clock               func() time.Time
	pageSize            int
	detailFallbackLimit int
	refreshTimeout      time.Duration
	refreshGroup        singleflight.Group
}

// NewService validates dependencies and applies defaults.
func NewService(config Config) (*Service, error) {
	if config.Credentials == nil {
		return nil, errors.New("activitysync.config: credential store must be provided")
	}
	if config.Provider == nil {
		return nil, errors.New("activitysync.config: activity provider must be provided")
	}
	if config.Rides == nil {
		return nil, errors.New("activitysync.config: ride writer must be provided")
	}
	service := &Service{
		credentials:         config.Credentials,
		provider:            config.Provider,
		rides:               config.Rides,
		logger:              config.Logger,
		metrics:             config.Metrics,
		clock:               config.Clock,
		pageSize:            config.PageSize,
		detailFallbackLimit: config.DetailFallbackLimit,
		refreshTimeout:      config.RefreshTimeout,
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	if service.metrics == nil {
		service.metrics = noopMetrics{}
	}
	if service.clock == nil {
		service.clock = time.Now
	}
	if service.pageSize <= 0 {
		service.pageSize = DefaultPageSize
	}
	if service.refreshTimeout <= 0 {
		service.refreshTimeout = DefaultRefreshTimeout
	}
	return service, nil
}

// Sync runs one pass for the user.
func (service *Service) Sync(ctx context.Context, userID string) (Result, error) {
	result, err := service.sync(ctx, userID)
	outcome := "success"
	if err != nil {
		outcome = outcomeFor(err)
	}
	service.metrics.RecordSync(outcome, result)
	return result, err
}

func (service *Service) sync(ctx context.Context, userID string) (Result, error) {
	var result Result
	credential, found, err := service.credentials.Get(ctx, userID)
	if err != nil {
		service.logger.Error("load credential failed", zap.String("code", "sync.credential_load"), zap.String("user_id", userID), zap.Error(err))
		return result, fmt.Errorf("activitysync.load: %w", err)
	}
	if !found {
		return result, ErrNotConnected
	}

	if credential.Expired(service.clock().Unix()) {
		refreshed, refreshErr := service.refresh(ctx, userID)
		if refreshErr != nil {
			return result, refreshErr
		}
		credential = refreshed
		result.Refreshed = true
	}

	page, fetchErr := service.provider.ListActivities(ctx, credential.AccessToken, service.pageSize)
	if fetchErr != nil {
		failure := toFetchFailed(fetchErr)
		service.logger.Warn("activities fetch failed", zap.String("code", "sync.fetch_failed"), zap.String("user_id", userID), zap.Int("status", failure.Status), zap.Error(fetchErr))
		return result, failure
	}
	result.Fetched = len(page.Activities)
	result.Dropped = page.Dropped

	valid := make([]strava.Activity, 0, len(page.Activities))
	for _, activity := range page.Activities {
		if rides.IsMappable(activity) {
			valid = append(valid, activity)
		}
	}
	result.Skipped = result.Fetched - len(valid)
	if len(valid) == 0 && len(page.Activities) > 0 && service.detailFallbackLimit > 0 {
		valid = service.fetchDetails(ctx, userID, credential.AccessToken, page.Activities)
	}
	result.Valid = len(valid)

	for _, activity := range valid {
		if upsertErr := service.rides.Upsert(ctx, rides.FromActivity(userID, activity)); upsertErr != nil {
			service.logger.Warn("ride upsert failed", zap.String("code", "sync.upsert_failed"), zap.String("user_id", userID), zap.Int64("strava_activity_id", activity.ID), zap.Error(upsertErr))
			continue
		}
		result.Persisted++
	}
	result.Activities = valid
	service.logger.Info("sync pass complete",
		zap.String("user_id", userID),
		zap.Int("fetched", result.Fetched),
		zap.Int("valid", result.Valid),
		zap.Int("persisted", result.Persisted),
		zap.Bool("refreshed", result.Refreshed),
	)
	return result, nil
}

// refresh exchanges the stored refresh token and writes the new credential in one Set.
// Concurrent refreshes for one user share a single provider call. The shared call runs on a
// context detached from any one caller and bounded by the refresh timeout; each caller stops
// waiting when its own context ends.
func (service *Service) refresh(ctx context.Context, userID string) (credentials.Credential, error) {
	flight := service.refreshGroup.DoChan(userID, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.refreshTimeout)
		defer cancel()
		return service.refreshCredential(flightCtx, userID)
	})
	select {
	case <-ctx.Done():
		service.logger.Warn("refresh wait abandoned", zap.String("code", "sync.refresh_abandoned"), zap.String("user_id", userID), zap.Error(ctx.Err()))
		return credentials.Credential{}, fmt.Errorf("activitysync.refresh: %w", ctx.Err())
	case outcome := <-flight:
		if outcome.Err != nil {
			return credentials.Credential{}, outcome.Err
		}
		return outcome.Val.(credentials.Credential), nil
	}
}

func (service *Service) refreshCredential(ctx context.Context, userID string) (credentials.Credential, error) {
	current, found, loadErr := service.credentials.Get(ctx, userID)
	if loadErr != nil {
		return credentials.Credential{}, fmt.Errorf("activitysync.refresh.load: %w", loadErr)
	}
	if !found {
		return credentials.Credential{}, ErrNotConnected
	}
	if !current.Expired(service.clock().Unix()) {
		return current, nil
	}
	tokenSet, refreshErr := service.provider.Refresh(ctx, current.RefreshToken)
	if refreshErr != nil {
		if errors.Is(refreshErr, context.DeadlineExceeded) || errors.Is(refreshErr, context.Canceled) {
			service.metrics.RecordRefresh("timeout")
			service.logger.Warn("token refresh timed out", zap.String("code", "sync.refresh_timeout"), zap.String("user_id", userID), zap.Error(refreshErr))
			return credentials.Credential{}, fmt.Errorf("activitysync.refresh: %w", refreshErr)
		}
		service.metrics.RecordRefresh("failure")
		service.logger.Warn("token refresh rejected", zap.String("code", "sync.refresh_failed"), zap.String("user_id", userID), zap.Error(refreshErr))
		return credentials.Credential{}, fmt.Errorf("%w: %v", ErrRefreshFailed, refreshErr)
	}
	updated := credentials.Credential{
		ProviderUserID: current.ProviderUserID,
		AccessToken:    tokenSet.AccessToken,
		RefreshToken:   tokenSet.RefreshToken,
		ExpiresAt:      tokenSet.ExpiresAt,
	}
	if updated.ProviderUserID == "" {
		updated.ProviderUserID = tokenSet.AthleteID
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = current.RefreshToken
	}
	if validateErr := updated.Validate(); validateErr != nil {
		service.metrics.RecordRefresh("failure")
		service.logger.Warn("refreshed token unusable", zap.String("code", "sync.refresh_invalid"), zap.String("user_id", userID), zap.Error(validateErr))
		return credentials.Credential{}, fmt.Errorf("%w: %v", ErrRefreshFailed, validateErr)
	}
	if setErr := service.credentials.Set(ctx, userID, updated); setErr != nil {
		service.metrics.RecordRefresh("store_failure")
		service.logger.Error("refreshed credential not stored", zap.String("code", "sync.refresh_store"), zap.String("user_id", userID), zap.Error(setErr))
		return credentials.Credential{}, fmt.Errorf("activitysync.refresh.store: %w", setErr)
	}
	service.metrics.RecordRefresh("success")
	return updated, nil
}

func (service *Service) fetchDetails(ctx context.Context, userID string, accessToken string, summaries []strava.Activity) []strava.Activity {
	limit := service.detailFallbackLimit
	if limit > len(summaries) {
		limit = len(summaries)
	}
	valid := make([]strava.Activity, 0, limit)
	for _, summary := range summaries[:limit] {
		detail, err := service.provider.GetActivity(ctx, accessToken, summary.ID)
		if err != nil {
			service.logger.Warn("activity detail fetch failed", zap.String("code", "sync.detail_failed"), zap.String("user_id", userID), zap.Int64("strava_activity_id", summary.ID), zap.Error(err))
			continue
		}
		if rides.IsMappable(detail) {
			valid = append(valid, detail)
		}
	}
	return valid
}

func toFetchFailed(err error) *FetchFailedError {
	var apiError *strava.APIError
	switch {
	case errors.As(err, &apiError):
		return &FetchFailedError{Status: apiError.Status, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchFailedError{Status: http.StatusGatewayTimeout, Err: err}
	default:
		return &FetchFailedError{Status: http.StatusBadGateway, Err: err}
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
