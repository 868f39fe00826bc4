package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/rideposter/internal/accounts"
	"github.com/tyemirov/rideposter/internal/activitysync"
	"github.com/tyemirov/rideposter/internal/authkit"
	"github.com/tyemirov/rideposter/internal/credentialpg"
	"github.com/tyemirov/rideposter/internal/credentials"
	"github.com/tyemirov/rideposter/internal/database"
	"github.com/tyemirov/rideposter/internal/observability"
	"github.com/tyemirov/rideposter/internal/posters"
	"github.com/tyemirov/rideposter/internal/rides"
	"github.com/tyemirov/rideposter/internal/strava"
	"github.com/tyemirov/rideposter/internal/web"
	"github.com/tyemirov/rideposter/pkg/sessionvalidator"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config.dotenv: %v\n", err)
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "rideposter",
		Short:   "Ride poster backend: Google sign-in, Strava sync, rides, and poster configurations",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	flags := rootCmd.Flags()
	flags.String("listen_addr", ":8080", "HTTP listen address")
	flags.String("cookie_domain", "", "Cookie domain; empty for host-only")
	flags.String("google_web_client_id", "", "Google Web OAuth Client ID")
	flags.String("jwt_signing_key", "", "HS256 signing secret for session JWTs")
	flags.String("jwt_issuer", defaultJWTIssuer, "Issuer claim of session JWTs")
	flags.Duration("session_ttl", 15*time.Minute, "Session token TTL")
	flags.Duration("refresh_ttl", 60*24*time.Hour, "Refresh token TTL")
	flags.Duration("nonce_ttl", 5*time.Minute, "Lifetime of login nonces and Strava OAuth states")
	flags.Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	flags.String("database_url", "sqlite:rideposter.db", "Database URL (postgres:// or sqlite:)")
	flags.String("credential_backend", credentialBackendGORM, "Strava credential storage: gorm or pgx")
	flags.String("strava_client_id", "", "Strava application client id")
	flags.String("strava_client_secret", "", "Strava application client secret")
	flags.String("strava_redirect_url", "", "Redirect URL registered with Strava")
	flags.String("strava_auth_url", strava.DefaultAuthURL, "Strava authorize endpoint")
	flags.String("strava_token_url", strava.DefaultTokenURL, "Strava token endpoint")
	flags.String("strava_api_base_url", strava.DefaultAPIBaseURL, "Strava API base URL")
	flags.Int("sync_page_size", activitysync.DefaultPageSize, "Activities requested per sync pass")
	flags.Int("sync_detail_fallback", activitysync.DefaultDetailFallbackLimit, "Detail fetches when no summary has a route; 0 disables")
	flags.Duration("sync_timeout", web.DefaultSyncTimeout, "Upper bound of one sync request")
	flags.Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	flags.StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")

	_ = viper.BindPFlags(flags)

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	appConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, appConfig))
	return nil
}

func runServer(command *cobra.Command, arguments []string) error {
	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	appConfig, ok := contextValue.(AppConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	application, buildErr := buildApplication(commandContext, appConfig, logger)
	if buildErr != nil {
		return buildErr
	}
	defer application.Close()

	server := &http.Server{
		Addr:              appConfig.ListenAddr,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.String("code", "server.shutdown"), zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", appConfig.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// application is the assembled router plus the resources it holds open.
type application struct {
	Router  *gin.Engine
	closers []func()
}

func (app *application) Close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		app.closers[index]()
	}
}

func buildApplication(ctx context.Context, appConfig AppConfig, logger *zap.Logger) (*application, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app := &application{}
	handle, openErr := database.Open(ctx, appConfig.DatabaseURL)
	if openErr != nil {
		return nil, openErr
	}
	app.closers = append(app.closers, func() { _ = handle.Close() })
	logger.Info("database opened", zap.String("driver", handle.Driver))

	users, err := accounts.NewDatabaseUserStore(ctx, handle.DB)
	if err != nil {
		app.Close()
		return nil, err
	}
	clock := authkit.SystemClock()
	refreshTokens, err := authkit.NewDatabaseRefreshTokenStore(ctx, handle.DB, clock)
	if err != nil {
		app.Close()
		return nil, err
	}
	credentialStore, err := buildCredentialStore(ctx, app, appConfig, handle)
	if err != nil {
		app.Close()
		return nil, err
	}
	rideStore, err := rides.NewStore(ctx, handle.DB)
	if err != nil {
		app.Close()
		return nil, err
	}
	posterStore, err := posters.NewStore(ctx, handle.DB)
	if err != nil {
		app.Close()
		return nil, err
	}

	metrics := observability.NewMetrics("rideposter")
	stravaClient, err := strava.NewClient(appConfig.Strava)
	if err != nil {
		app.Close()
		return nil, err
	}
	syncService, err := activitysync.NewService(activitysync.Config{
		Credentials:         credentialStore,
		Provider:            stravaClient,
		Rides:               rideStore,
		Logger:              logger.Named("sync"),
		Metrics:             metrics,
		PageSize:            appConfig.SyncPageSize,
		DetailFallbackLimit: appConfig.SyncDetailFallback,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	sessions, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: appConfig.Auth.AppJWTSigningKey,
		Issuer:     appConfig.Auth.AppJWTIssuer,
		CookieName: appConfig.Auth.SessionCookieName,
		Clock:      clock,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	tokenValidator, err := buildGoogleTokenValidator(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, err)
	}

	authConfig := appConfig.Auth
	authConfig.SameSiteMode = http.SameSiteStrictMode
	if appConfig.EnableCORS {
		authConfig.SameSiteMode = http.SameSiteNoneMode
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))
	router.Use(observability.Middleware(metrics))
	if appConfig.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, appConfig.CORSAllowedOrigins)
		if corsErr != nil {
			app.Close()
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	mountErr := authkit.MountAuthRoutes(router, authConfig, authkit.Dependencies{
		Users:          users,
		RefreshTokens:  refreshTokens,
		Nonces:         authkit.NewMemoryNonceStore(appConfig.NonceTTL, clock),
		TokenValidator: tokenValidator,
		Sessions:       sessions,
		Clock:          clock,
		Logger:         logger.Named("auth"),
		Metrics:        metrics,
	})
	if mountErr != nil {
		app.Close()
		return nil, mountErr
	}
	mountErr = web.MountAPIRoutes(router, web.Dependencies{
		Users:       users,
		Credentials: credentialStore,
		Strava:      stravaClient,
		States:      authkit.NewMemoryNonceStore(appConfig.NonceTTL, clock),
		Sync:        syncService,
		Rides:       rideStore,
		Posters:     posterStore,
		Sessions:    sessions,
		Logger:      logger.Named("api"),
		SyncTimeout: appConfig.SyncTimeout,
	})
	if mountErr != nil {
		app.Close()
		return nil, mountErr
	}
	app.Router = router
	return app, nil
}

func buildCredentialStore(ctx context.Context, app *application, appConfig AppConfig, handle *database.Handle) (credentials.Store, error) {
	if appConfig.CredentialBackend != credentialBackendPGX {
		return credentials.NewDatabaseStore(ctx, handle.DB)
	}
	pool, err := credentialpg.BuildPool(ctx, appConfig.DatabaseURL)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, pool.Close)
	if schemaErr := credentialpg.EnsureSchema(ctx, pool); schemaErr != nil {
		return nil, schemaErr
	}
	return credentialpg.NewStore(pool), nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
