package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tyemirov/rideposter/internal/authkit"
	"github.com/tyemirov/rideposter/internal/strava"
)

const (
	defaultJWTIssuer  = "rideposter"
	sessionCookieName = "app_session"
	refreshCookieName = "app_refresh"

	credentialBackendGORM = "gorm"
	credentialBackendPGX  = "pgx"

	configCodeMissingGoogleClientID    = "config.missing_google_web_client_id"
	configCodeMissingJWTSigningKey     = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL        = "config.invalid_session_ttl"
	configCodeInvalidRefreshTTL        = "config.invalid_refresh_ttl"
	configCodeMissingDatabaseURL       = "config.missing_database_url"
	configCodeMissingStravaClientID    = "config.missing_strava_client_id"
	configCodeMissingStravaSecret      = "config.missing_strava_client_secret"
	configCodeInvalidCredentialBackend = "config.invalid_credential_backend"
	configCodeInvalidSyncTimeout       = "config.invalid_sync_timeout"
	configCodeMissingCORSOrigins       = "config.missing_cors_allowed_origins"
	configCodeUninitializedServerConf  = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit      = "config.google_validator_init"
)

// AppConfig is the validated runtime configuration of the server.
type AppConfig struct {
	Auth               authkit.ServerConfig
	NonceTTL           time.Duration
	ListenAddr         string
	DatabaseURL        string
	CredentialBackend  string
	Strava             strava.Config
	SyncPageSize       int
	SyncDetailFallback int
	SyncTimeout        time.Duration
	EnableCORS         bool
	CORSAllowedOrigins []string
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads viper keys into an AppConfig and rejects incomplete setups.
func LoadServerConfig() (AppConfig, error) {
	googleWebClientID := viper.GetString("google_web_client_id")
	if googleWebClientID == "" {
		return AppConfig{}, configError(configCodeMissingGoogleClientID, "google_web_client_id must be provided")
	}
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return AppConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}
	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return AppConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}
	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return AppConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}
	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	if databaseURL == "" {
		return AppConfig{}, configError(configCodeMissingDatabaseURL, "database_url must be provided")
	}
	stravaClientID := viper.GetString("strava_client_id")
	if stravaClientID == "" {
		return AppConfig{}, configError(configCodeMissingStravaClientID, "strava_client_id must be provided")
	}
	stravaClientSecret := viper.GetString("strava_client_secret")
	if stravaClientSecret == "" {
		return AppConfig{}, configError(configCodeMissingStravaSecret, "strava_client_secret must be provided")
	}

	credentialBackend := strings.ToLower(strings.TrimSpace(viper.GetString("credential_backend")))
	if credentialBackend == "" {
		credentialBackend = credentialBackendGORM
	}
	switch credentialBackend {
	case credentialBackendGORM:
	case credentialBackendPGX:
		if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
			return AppConfig{}, configError(configCodeInvalidCredentialBackend, "credential_backend pgx requires a postgres database_url")
		}
	default:
		return AppConfig{}, configError(configCodeInvalidCredentialBackend, "credential_backend must be gorm or pgx")
	}

	syncTimeout := viper.GetDuration("sync_timeout")
	if syncTimeout <= 0 {
		return AppConfig{}, configError(configCodeInvalidSyncTimeout, "sync_timeout must be greater than zero")
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return AppConfig{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	jwtIssuer := strings.TrimSpace(viper.GetString("jwt_issuer"))
	if jwtIssuer == "" {
		jwtIssuer = defaultJWTIssuer
	}

	nonceTTL := 5 * time.Minute
	if configuredNonceTTL := viper.GetDuration("nonce_ttl"); configuredNonceTTL > 0 {
		nonceTTL = configuredNonceTTL
	}

	return AppConfig{
		Auth: authkit.ServerConfig{
			GoogleWebClientID: googleWebClientID,
			AppJWTSigningKey:  []byte(jwtSigningKey),
			AppJWTIssuer:      jwtIssuer,
			CookieDomain:      viper.GetString("cookie_domain"),
			SessionCookieName: sessionCookieName,
			RefreshCookieName: refreshCookieName,
			SessionTTL:        sessionTTL,
			RefreshTTL:        refreshTTL,
			AllowInsecureHTTP: viper.GetBool("dev_insecure_http"),
		},
		NonceTTL:          nonceTTL,
		ListenAddr:        viper.GetString("listen_addr"),
		DatabaseURL:       databaseURL,
		CredentialBackend: credentialBackend,
		Strava: strava.Config{
			ClientID:     stravaClientID,
			ClientSecret: stravaClientSecret,
			RedirectURL:  viper.GetString("strava_redirect_url"),
			AuthURL:      viper.GetString("strava_auth_url"),
			TokenURL:     viper.GetString("strava_token_url"),
			APIBaseURL:   viper.GetString("strava_api_base_url"),
		},
		SyncPageSize:       viper.GetInt("sync_page_size"),
		SyncDetailFallback: viper.GetInt("sync_detail_fallback"),
		SyncTimeout:        syncTimeout,
		EnableCORS:         enableCORS,
		CORSAllowedOrigins: corsAllowedOrigins,
	}, nil
}
