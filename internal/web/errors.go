package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/rideposter/internal/activitysync"
	"github.com/tyemirov/rideposter/internal/credentials"
	"github.com/tyemirov/rideposter/internal/posters"
	"github.com/tyemirov/rideposter/internal/rides"
	"go.uber.org/zap"
)

const (
	codeInvalidJSON     = "request.invalid_json"
	codeInvalidID       = "request.invalid_id"
	codeInvalidState    = "strava.invalid_state"
	codeExchangeFailed  = "strava.exchange_failed"
	codeSyncTimeout     = "strava.sync_timeout"
	codeInternalFailure = "server.internal"
)

// writeError maps domain errors onto a status and a dotted code.
func writeError(contextGin *gin.Context, logger *zap.Logger, err error) {
	status, body := describeError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("code", body["error"].(string)),
			zap.String("path", contextGin.FullPath()),
			zap.Error(err))
	}
	contextGin.AbortWithStatusJSON(status, body)
}

func describeError(err error) (int, gin.H) {
	var fetchFailed *activitysync.FetchFailedError
	switch {
	case errors.Is(err, activitysync.ErrNotConnected):
		return http.StatusBadRequest, gin.H{"error": activitysync.ErrNotConnected.Error()}
	case errors.Is(err, activitysync.ErrRefreshFailed):
		return http.StatusBadRequest, gin.H{"error": activitysync.ErrRefreshFailed.Error()}
	case errors.As(err, &fetchFailed):
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return status, gin.H{"error": activitysync.ErrFetchFailed.Error(), "status": fetchFailed.Status}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, gin.H{"error": codeSyncTimeout}
	case errors.Is(err, credentials.ErrStorageUnavailable),
		errors.Is(err, rides.ErrStorageUnavailable),
		errors.Is(err, posters.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": credentials.ErrStorageUnavailable.Error()}
	case errors.Is(err, posters.ErrPosterNotFound):
		return http.StatusNotFound, gin.H{"error": posters.ErrPosterNotFound.Error()}
	case errors.Is(err, posters.ErrInvalidPoster):
		return http.StatusBadRequest, gin.H{"error": posters.ErrInvalidPoster.Error(), "detail": err.Error()}
	case errors.Is(err, rides.ErrRideNotFound):
		return http.StatusNotFound, gin.H{"error": rides.ErrRideNotFound.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": codeInternalFailure}
	}
}
