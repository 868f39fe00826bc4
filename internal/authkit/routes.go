package authkit

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/rideposter/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// Dependencies are the collaborators of the auth routes.
type Dependencies struct {
	Users          UserStore
	RefreshTokens  RefreshTokenStore
	Nonces         NonceStore
	TokenValidator GoogleTokenValidator
	Sessions       *sessionvalidator.Validator
	Clock          Clock
	Logger         *zap.Logger
	Metrics        MetricsRecorder
}

func (dependencies Dependencies) validate() error {
	switch {
	case dependencies.Users == nil:
		return errors.New("authkit.dependencies: user store must be provided")
	case dependencies.RefreshTokens == nil:
		return errors.New("authkit.dependencies: refresh token store must be provided")
	case dependencies.Nonces == nil:
		return errors.New("authkit.dependencies: nonce store must be provided")
	case dependencies.TokenValidator == nil:
		return errors.New("authkit.dependencies: google token validator must be provided")
	case dependencies.Sessions == nil:
		return errors.New("authkit.dependencies: session validator must be provided")
	}
	return nil
}

type authHandlers struct {
	configuration ServerConfig
	Dependencies
}

var acceptedGoogleIssuers = map[string]struct{}{
	"https://accounts.google.com": {},
	"accounts.google.com":         {},
}

// MountAuthRoutes registers /auth/nonce, /auth/google, /auth/refresh, /auth/logout, and /me.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, dependencies Dependencies) error {
	if err := configuration.validate(); err != nil {
		return err
	}
	if err := dependencies.validate(); err != nil {
		return err
	}
	if dependencies.Clock == nil {
		dependencies.Clock = systemClock{}
	}
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Metrics == nil {
		dependencies.Metrics = noopMetrics{}
	}
	handlers := &authHandlers{configuration: configuration, Dependencies: dependencies}
	router.POST("/auth/nonce", handlers.issueNonce)
	router.POST("/auth/google", handlers.loginWithGoogle)
	router.POST("/auth/refresh", handlers.refreshSession)
	router.POST("/auth/logout", handlers.logout)
	router.GET("/me", dependencies.Sessions.GinMiddleware(sessionvalidator.DefaultContextKey), handlers.me)
	return nil
}

func (handlers *authHandlers) issueNonce(contextGin *gin.Context) {
	nonce, err := handlers.Nonces.Issue(contextGin.Request.Context())
	if err != nil {
		handlers.Logger.Error("nonce issue failed", zap.String("code", "auth.nonce_issue"), zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth.nonce_issue_failed"})
		return
	}
	handlers.Metrics.Increment(MetricNonceIssued)
	contextGin.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

func (handlers *authHandlers) loginWithGoogle(contextGin *gin.Context) {
	var inbound struct {
		GoogleIDToken string `json:"google_id_token"`
		Nonce         string `json:"nonce"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.GoogleIDToken) == "" {
		handlers.loginFailure(contextGin, http.StatusBadRequest, "invalid_json")
		return
	}
	if !handlers.configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
		handlers.loginFailure(contextGin, http.StatusBadRequest, "https_required")
		return
	}

	requestContext := contextGin.Request.Context()
	payload, validateErr := handlers.TokenValidator.Validate(requestContext, inbound.GoogleIDToken, handlers.configuration.GoogleWebClientID)
	if validateErr != nil {
		handlers.Logger.Warn("google token rejected", zap.String("code", "auth.invalid_google_token"), zap.Error(validateErr))
		handlers.loginFailure(contextGin, http.StatusUnauthorized, "invalid_google_token")
		return
	}
	issuerValue, _ := payload.Claims["iss"].(string)
	if _, accepted := acceptedGoogleIssuers[issuerValue]; !accepted {
		handlers.loginFailure(contextGin, http.StatusUnauthorized, "invalid_issuer")
		return
	}
	if strings.TrimSpace(inbound.Nonce) != "" {
		if nonceErr := handlers.Nonces.Consume(requestContext, inbound.Nonce); nonceErr != nil {
			handlers.loginFailure(contextGin, http.StatusUnauthorized, "invalid_nonce")
			return
		}
		tokenNonce, _ := payload.Claims["nonce"].(string)
		if tokenNonce != inbound.Nonce {
			handlers.loginFailure(contextGin, http.StatusUnauthorized, "nonce_mismatch")
			return
		}
	}
	googleSub, _ := payload.Claims["sub"].(string)
	userEmail, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	userDisplayName, _ := payload.Claims["name"].(string)
	if googleSub == "" || userEmail == "" || !emailVerified {
		handlers.loginFailure(contextGin, http.StatusUnauthorized, "unverified_identity")
		return
	}

	applicationUserID, userRoles, upsertErr := handlers.Users.UpsertGoogleUser(requestContext, googleSub, userEmail, userDisplayName)
	if upsertErr != nil || applicationUserID == "" {
		handlers.Logger.Error("user upsert failed", zap.String("code", "auth.user_upsert"), zap.Error(upsertErr))
		handlers.loginFailure(contextGin, http.StatusInternalServerError, "user_store_failure")
		return
	}
	if !handlers.startSession(contextGin, applicationUserID, userEmail, userDisplayName, userRoles, "") {
		handlers.Metrics.Increment(MetricLoginFailure)
		return
	}
	handlers.Metrics.Increment(MetricLoginSuccess)
	handlers.Logger.Info("login succeeded", zap.String("user_id", applicationUserID))
	contextGin.JSON(http.StatusOK, gin.H{
		"user_id":    applicationUserID,
		"user_email": userEmail,
		"display":    userDisplayName,
		"roles":      userRoles,
	})
}

func (handlers *authHandlers) refreshSession(contextGin *gin.Context) {
	refreshCookie, cookieErr := contextGin.Request.Cookie(handlers.configuration.RefreshCookieName)
	if cookieErr != nil || strings.TrimSpace(refreshCookie.Value) == "" {
		handlers.refreshFailure(contextGin, http.StatusUnauthorized)
		return
	}
	requestContext := contextGin.Request.Context()
	applicationUserID, currentTokenID, expiresUnix, validateErr := handlers.RefreshTokens.Validate(requestContext, refreshCookie.Value)
	if validateErr != nil || expiresUnix < handlers.Clock.Now().Unix() {
		handlers.refreshFailure(contextGin, http.StatusUnauthorized)
		return
	}
	userEmail, userDisplayName, userRoles, profileErr := handlers.Users.GetUserProfile(requestContext, applicationUserID)
	if profileErr != nil {
		handlers.refreshFailure(contextGin, http.StatusUnauthorized)
		return
	}
	if !handlers.startSession(contextGin, applicationUserID, userEmail, userDisplayName, userRoles, currentTokenID) {
		handlers.Metrics.Increment(MetricRefreshFailure)
		return
	}
	if revokeErr := handlers.RefreshTokens.Revoke(requestContext, currentTokenID); revokeErr != nil {
		handlers.Logger.Error("refresh token revoke failed", zap.String("code", "auth.refresh_revoke"), zap.Error(revokeErr))
		handlers.refreshFailure(contextGin, http.StatusInternalServerError)
		return
	}
	handlers.Metrics.Increment(MetricRefreshSuccess)
	contextGin.Status(http.StatusNoContent)
}

func (handlers *authHandlers) logout(contextGin *gin.Context) {
	refreshCookie, cookieErr := contextGin.Request.Cookie(handlers.configuration.RefreshCookieName)
	if cookieErr == nil && strings.TrimSpace(refreshCookie.Value) != "" {
		requestContext := contextGin.Request.Context()
		_, tokenID, _, validateErr := handlers.RefreshTokens.Validate(requestContext, refreshCookie.Value)
		if validateErr == nil && tokenID != "" {
			if revokeErr := handlers.RefreshTokens.Revoke(requestContext, tokenID); revokeErr != nil {
				handlers.Logger.Warn("logout revoke failed", zap.String("code", "auth.logout_revoke"), zap.Error(revokeErr))
			}
		}
	}
	clearCookie(contextGin, handlers.configuration.SessionCookieName, "/", handlers.configuration)
	clearCookie(contextGin, handlers.configuration.RefreshCookieName, "/auth", handlers.configuration)
	handlers.Metrics.Increment(MetricLogout)
	contextGin.Status(http.StatusNoContent)
}

func (handlers *authHandlers) me(contextGin *gin.Context) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"user_id":    claims.UserID,
		"user_email": claims.UserEmail,
		"display":    claims.UserDisplayName,
		"roles":      claims.UserRoles,
		"expires":    claims.GetExpiresAt(),
	})
}

// startSession mints the session token, issues a refresh token chained to previousTokenID
// and writes both cookies. It writes the error response itself and reports false on failure.
func (handlers *authHandlers) startSession(contextGin *gin.Context, applicationUserID string, userEmail string, userDisplayName string, userRoles []string, previousTokenID string) bool {
	sessionToken, sessionExpiresAt, mintErr := MintAppJWT(handlers.Clock, applicationUserID, userEmail, userDisplayName, userRoles, handlers.configuration.AppJWTIssuer, handlers.configuration.AppJWTSigningKey, handlers.configuration.SessionTTL)
	if mintErr != nil {
		handlers.Logger.Error("session mint failed", zap.String("code", "auth.session_mint"), zap.Error(mintErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return false
	}
	refreshExpiresAt := handlers.Clock.Now().Add(handlers.configuration.RefreshTTL)
	_, refreshOpaque, issueErr := handlers.RefreshTokens.Issue(contextGin.Request.Context(), applicationUserID, refreshExpiresAt.Unix(), previousTokenID)
	if issueErr != nil || strings.TrimSpace(refreshOpaque) == "" {
		handlers.Logger.Error("refresh token issue failed", zap.String("code", "auth.refresh_issue"), zap.Error(issueErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return false
	}
	writeCookie(contextGin, handlers.configuration.SessionCookieName, sessionToken, "/", sessionExpiresAt.Unix()-handlers.Clock.Now().Unix(), handlers.configuration)
	writeCookie(contextGin, handlers.configuration.RefreshCookieName, refreshOpaque, "/auth", refreshExpiresAt.Unix()-handlers.Clock.Now().Unix(), handlers.configuration)
	return true
}

func (handlers *authHandlers) loginFailure(contextGin *gin.Context, status int, code string) {
	handlers.Metrics.Increment(MetricLoginFailure)
	contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
}

func (handlers *authHandlers) refreshFailure(contextGin *gin.Context, status int) {
	handlers.Metrics.Increment(MetricRefreshFailure)
	contextGin.AbortWithStatus(status)
}

func writeCookie(contextGin *gin.Context, name string, value string, path string, maxAgeSeconds int64, configuration ServerConfig) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   configuration.CookieDomain,
		MaxAge:   int(maxAgeSeconds),
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearCookie(contextGin *gin.Context, name string, path string, configuration ServerConfig) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	if strings.EqualFold(request.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	return splitErr == nil && host == "localhost"
}
