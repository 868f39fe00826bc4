package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/rideposter/internal/credentials"
	"github.com/tyemirov/rideposter/internal/strava"
	"go.uber.org/zap"
)

func (handlers *apiHandlers) profile(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	requestContext := contextGin.Request.Context()
	user, userErr := handlers.Users.Get(requestContext, userID)
	if userErr != nil {
		handlers.Logger.Warn("profile lookup failed", zap.String("code", "web.profile_lookup"), zap.String("user_id", userID), zap.Error(userErr))
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user.not_found"})
		return
	}
	credential, connected, credentialErr := handlers.Credentials.Get(requestContext, userID)
	if credentialErr != nil {
		writeError(contextGin, handlers.Logger, credentialErr)
		return
	}
	response := gin.H{
		"id":               user.ID,
		"email":            user.Email,
		"display_name":     user.DisplayName,
		"roles":            user.Roles(),
		"strava_connected": connected,
	}
	if connected {
		response["strava_athlete_id"] = credential.ProviderUserID
	}
	contextGin.JSON(http.StatusOK, response)
}

func (handlers *apiHandlers) stravaAuthURL(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	state, err := handlers.States.IssueFor(contextGin.Request.Context(), userID)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"auth_url": handlers.Strava.AuthorizeURL(state), "state": state})
}

func (handlers *apiHandlers) stravaCallback(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	var inbound struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Code) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidJSON})
		return
	}
	requestContext := contextGin.Request.Context()
	if err := handlers.States.ConsumeFor(requestContext, inbound.State, userID); err != nil {
		handlers.Logger.Warn("strava state rejected", zap.String("code", codeInvalidState), zap.String("user_id", userID), zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidState})
		return
	}
	tokens, exchangeErr := handlers.Strava.Exchange(requestContext, inbound.Code)
	if exchangeErr != nil {
		handlers.exchangeFailure(contextGin, userID, exchangeErr)
		return
	}
	credential := credentials.Credential{
		ProviderUserID: tokens.AthleteID,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		ExpiresAt:      tokens.ExpiresAt,
	}
	if setErr := handlers.Credentials.Set(requestContext, userID, credential); setErr != nil {
		if errors.Is(setErr, credentials.ErrInvalidCredential) {
			handlers.exchangeFailure(contextGin, userID, setErr)
			return
		}
		writeError(contextGin, handlers.Logger, setErr)
		return
	}
	handlers.Logger.Info("strava connected", zap.String("user_id", userID), zap.String("athlete_id", tokens.AthleteID))
	contextGin.JSON(http.StatusOK, gin.H{"strava_connected": true, "strava_athlete_id": tokens.AthleteID})
}

func (handlers *apiHandlers) exchangeFailure(contextGin *gin.Context, userID string, err error) {
	handlers.Logger.Warn("strava code exchange failed", zap.String("code", codeExchangeFailed), zap.String("user_id", userID), zap.Error(err))
	var tokenErr *strava.TokenError
	if errors.As(err, &tokenErr) && tokenErr.Status >= 400 && tokenErr.Status < 500 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeExchangeFailed})
		return
	}
	contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": codeExchangeFailed})
}

func (handlers *apiHandlers) stravaDisconnect(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if err := handlers.Credentials.Clear(contextGin.Request.Context(), userID); err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"strava_connected": false})
}

func (handlers *apiHandlers) syncActivities(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	syncContext, cancel := context.WithTimeout(contextGin.Request.Context(), handlers.SyncTimeout)
	defer cancel()

	result, err := handlers.Sync.Sync(syncContext, userID)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	activities := result.Activities
	if activities == nil {
		activities = []strava.Activity{}
	}
	contextGin.JSON(http.StatusOK, activities)
}
