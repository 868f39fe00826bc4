package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/rideposter/internal/posters"
)

func (handlers *apiHandlers) listRides(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	userRides, err := handlers.Rides.ListByUser(contextGin.Request.Context(), userID)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusOK, userRides)
}

func (handlers *apiHandlers) getRide(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	rideID, ok := pathID(contextGin)
	if !ok {
		return
	}
	ride, err := handlers.Rides.Get(contextGin.Request.Context(), userID, rideID)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusOK, ride)
}

func (handlers *apiHandlers) listPosters(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	summaries, err := handlers.Posters.List(contextGin.Request.Context(), userID)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusOK, summaries)
}

func (handlers *apiHandlers) createPoster(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	var draft posters.Draft
	if err := contextGin.ShouldBindJSON(&draft); err != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidJSON})
		return
	}
	summary, err := handlers.Posters.Create(contextGin.Request.Context(), userID, draft)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusCreated, summary)
}

func (handlers *apiHandlers) getPoster(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	posterID, ok := pathID(contextGin)
	if !ok {
		return
	}
	summary, err := handlers.Posters.Get(contextGin.Request.Context(), userID, posterID)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusOK, summary)
}

func (handlers *apiHandlers) updatePoster(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	posterID, ok := pathID(contextGin)
	if !ok {
		return
	}
	var patch posters.Patch
	if err := contextGin.ShouldBindJSON(&patch); err != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidJSON})
		return
	}
	summary, err := handlers.Posters.Update(contextGin.Request.Context(), userID, posterID, patch)
	if err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.JSON(http.StatusOK, summary)
}

func (handlers *apiHandlers) deletePoster(contextGin *gin.Context) {
	userID, ok := currentUserID(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	posterID, ok := pathID(contextGin)
	if !ok {
		return
	}
	if err := handlers.Posters.Delete(contextGin.Request.Context(), userID, posterID); err != nil {
		writeError(contextGin, handlers.Logger, err)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

// pathID parses the :id segment and writes a 400 when it is not a positive integer.
func pathID(contextGin *gin.Context) (uint, bool) {
	parsed, err := strconv.ParseUint(contextGin.Param("id"), 10, 64)
	if err != nil || parsed == 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidID})
		return 0, false
	}
	return uint(parsed), true
}
