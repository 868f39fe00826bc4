// Package web exposes the ride poster HTTP API.
package web

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/rideposter/internal/accounts"
	"github.com/tyemirov/rideposter/internal/activitysync"
	"github.com/tyemirov/rideposter/internal/authkit"
	"github.com/tyemirov/rideposter/internal/credentials"
	"github.com/tyemirov/rideposter/internal/posters"
	"github.com/tyemirov/rideposter/internal/rides"
	"github.com/tyemirov/rideposter/internal/strava"
	"github.com/tyemirov/rideposter/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// DefaultSyncTimeout bounds one sync request when no timeout is configured.
const DefaultSyncTimeout = 30 * time.Second

// ProfileReader loads the signed-in user.
type ProfileReader interface {
	Get(ctx context.Context, applicationUserID string) (accounts.User, error)
}

// StravaConnector drives the Strava authorization code flow.
type StravaConnector interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (strava.TokenSet, error)
}

// ActivitySyncer runs one sync pass for a user.
type ActivitySyncer interface {
	Sync(ctx context.Context, userID string) (activitysync.Result, error)
}

// RideReader lists persisted rides.
type RideReader interface {
	ListByUser(ctx context.Context, userID string) ([]rides.Ride, error)
	Get(ctx context.Context, userID string, rideID uint) (rides.Ride, error)
}

// PosterStore persists poster configurations.
type PosterStore interface {
	Create(ctx context.Context, userID string, draft posters.Draft) (posters.Summary, error)
	List(ctx context.Context, userID string) ([]posters.Summary, error)
	Get(ctx context.Context, userID string, posterID uint) (posters.Summary, error)
	Update(ctx context.Context, userID string, posterID uint, patch posters.Patch) (posters.Summary, error)
	Delete(ctx context.Context, userID string, posterID uint) error
}

// Dependencies are the collaborators of the API routes.
type Dependencies struct {
	Users       ProfileReader
	Credentials credentials.Store
	Strava      StravaConnector
	States      authkit.NonceStore
	Sync        ActivitySyncer
	Rides       RideReader
	Posters     PosterStore
	Sessions    *sessionvalidator.Validator
	Logger      *zap.Logger
	SyncTimeout time.Duration
}

func (dependencies Dependencies) validate() error {
	switch {
	case dependencies.Users == nil:
		return errors.New("web.dependencies: user store must be provided")
	case dependencies.Credentials == nil:
		return errors.New("web.dependencies: credential store must be provided")
	case dependencies.Strava == nil:
		return errors.New("web.dependencies: strava connector must be provided")
	case dependencies.States == nil:
		return errors.New("web.dependencies: state store must be provided")
	case dependencies.Sync == nil:
		return errors.New("web.dependencies: sync service must be provided")
	case dependencies.Rides == nil:
		return errors.New("web.dependencies: ride store must be provided")
	case dependencies.Posters == nil:
		return errors.New("web.dependencies: poster store must be provided")
	case dependencies.Sessions == nil:
		return errors.New("web.dependencies: session validator must be provided")
	}
	return nil
}

type apiHandlers struct {
	Dependencies
}

// MountAPIRoutes registers the session-protected /api routes.
func MountAPIRoutes(router gin.IRouter, dependencies Dependencies) error {
	if err := dependencies.validate(); err != nil {
		return err
	}
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.SyncTimeout <= 0 {
		dependencies.SyncTimeout = DefaultSyncTimeout
	}
	handlers := &apiHandlers{Dependencies: dependencies}

	api := router.Group("/api")
	api.Use(dependencies.Sessions.GinMiddleware(sessionvalidator.DefaultContextKey))
	api.GET("/profile", handlers.profile)

	api.GET("/strava/auth-url", handlers.stravaAuthURL)
	api.POST("/strava/callback", handlers.stravaCallback)
	api.POST("/strava/disconnect", handlers.stravaDisconnect)
	api.GET("/sync-activities", handlers.syncActivities)
	api.POST("/sync-activities", handlers.syncActivities)

	api.GET("/rides", handlers.listRides)
	api.GET("/rides/:id", handlers.getRide)

	api.GET("/posters", handlers.listPosters)
	api.POST("/posters", handlers.createPoster)
	api.GET("/posters/:id", handlers.getPoster)
	api.PUT("/posters/:id", handlers.updatePoster)
	api.PATCH("/posters/:id", handlers.updatePoster)
	api.DELETE("/posters/:id", handlers.deletePoster)
	return nil
}

// currentUserID reads the session subject set by the session middleware.
func currentUserID(contextGin *gin.Context) (string, bool) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
	if !ok || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}
