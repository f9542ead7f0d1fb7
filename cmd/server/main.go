package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cranetrips/backend/internal/authkit"
	"github.com/cranetrips/backend/internal/tripstore"
	"github.com/cranetrips/backend/internal/web"
	webassets "github.com/cranetrips/backend/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	// Secrets may live in a local .env file, matching how deployments
	// provision provider credentials.
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cranetrips",
		Short:   "Trip-planning backend with OAuth2 provider login, local credentials, and bearer-token sessions",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for bearer tokens")
	rootCmd.Flags().Duration("oauth_token_ttl", 5*time.Minute, "Bearer token TTL for provider-originated logins")
	rootCmd.Flags().Duration("local_token_ttl", 12*time.Hour, "Bearer token TTL for local credential logins")
	rootCmd.Flags().Duration("state_ttl", 10*time.Minute, "Anti-forgery state lifetime for OAuth2 flows")
	rootCmd.Flags().String("external_base_url", "http://localhost:8080", "Public base URL used to build provider redirect URIs")
	rootCmd.Flags().String("login_redirect_url", "", "Browser URL receiving the token after a provider login (defaults to <external_base_url>/login)")
	rootCmd.Flags().String("logout_redirect_url", "", "Browser URL for rejected or ended sessions (defaults to <external_base_url>/logout)")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP cookies for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth2 client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth2 client secret")
	rootCmd.Flags().String("github_client_id", "", "GitHub OAuth2 client ID")
	rootCmd.Flags().String("github_client_secret", "", "GitHub OAuth2 client secret")
	rootCmd.Flags().String("fb_client_id", "", "Facebook OAuth2 client ID")
	rootCmd.Flags().String("fb_client_secret", "", "Facebook OAuth2 client secret")

	for _, name := range []string{
		"listen_addr", "database_url", "jwt_signing_key",
		"oauth_token_ttl", "local_token_ttl", "state_ttl",
		"external_base_url", "login_redirect_url", "logout_redirect_url",
		"cookie_domain", "dev_insecure_http", "enable_cors", "cors_allowed_origins",
		"google_client_id", "google_client_secret",
		"github_client_id", "github_client_secret",
		"fb_client_id", "fb_client_secret",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	sessionCookieName = "oauth_session"
	jwtIssuer         = "cranetrips-auth"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidOAuthTokenTTL    = "config.invalid_oauth_token_ttl"
	configCodeInvalidLocalTokenTTL    = "config.invalid_local_token_ttl"
	configCodeInvalidStateTTL         = "config.invalid_state_ttl"
	configCodeInvalidExternalBaseURL  = "config.invalid_external_base_url"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates viper-bound settings into an immutable ServerConfig.
func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	oauthTokenTTL := viper.GetDuration("oauth_token_ttl")
	if oauthTokenTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidOAuthTokenTTL, "oauth_token_ttl must be greater than zero")
	}

	localTokenTTL := viper.GetDuration("local_token_ttl")
	if localTokenTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidLocalTokenTTL, "local_token_ttl must be greater than zero")
	}

	stateTTL := viper.GetDuration("state_ttl")
	if stateTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidStateTTL, "state_ttl must be greater than zero")
	}

	externalBaseURL := strings.TrimRight(viper.GetString("external_base_url"), "/")
	parsedBase, parseErr := url.Parse(externalBaseURL)
	if parseErr != nil || parsedBase.Scheme == "" || parsedBase.Host == "" {
		return authkit.ServerConfig{}, configError(configCodeInvalidExternalBaseURL, "external_base_url must be an absolute URL")
	}

	loginRedirectURL := viper.GetString("login_redirect_url")
	if loginRedirectURL == "" {
		loginRedirectURL = externalBaseURL + "/login"
	}
	logoutRedirectURL := viper.GetString("logout_redirect_url")
	if logoutRedirectURL == "" {
		logoutRedirectURL = externalBaseURL + "/logout"
	}

	return authkit.ServerConfig{
		JWTSigningKey:     []byte(jwtSigningKey),
		JWTIssuer:         jwtIssuer,
		OAuthTokenTTL:     oauthTokenTTL,
		LocalTokenTTL:     localTokenTTL,
		StateTTL:          stateTTL,
		ExternalBaseURL:   externalBaseURL,
		LoginRedirectURL:  loginRedirectURL,
		LogoutRedirectURL: logoutRedirectURL,
		SessionCookieName: sessionCookieName,
		CookieDomain:      viper.GetString("cookie_domain"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	serverConfig.AllowInsecureHTTP = viper.GetBool("dev_insecure_http")
	serverConfig.SameSiteMode = http.SameSiteLaxMode
	if enableCORS {
		serverConfig.SameSiteMode = http.SameSiteNoneMode
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	var users authkit.UserStore
	var trips web.TripLister

	if databaseURL != "" {
		store, storeErr := tripstore.Open(context.Background(), databaseURL)
		if storeErr != nil {
			return storeErr
		}
		users = store
		trips = store
		logger.Info("using persistent store", zap.String("driver", store.Driver()))
	} else {
		users = authkit.NewMemoryUserStore()
		trips = emptyTripData{}
		logger.Info("using in-memory stores")
	}

	providers := authkit.NewProviderRegistry(authkit.DefaultProviders(
		authkit.ProviderCredentials{
			ClientID:     viper.GetString("google_client_id"),
			ClientSecret: viper.GetString("google_client_secret"),
		},
		authkit.ProviderCredentials{
			ClientID:     viper.GetString("github_client_id"),
			ClientSecret: viper.GetString("github_client_secret"),
		},
		authkit.ProviderCredentials{
			ClientID:     viper.GetString("fb_client_id"),
			ClientSecret: viper.GetString("fb_client_secret"),
		},
	)...)
	logger.Info("oauth providers registered", zap.Strings("providers", providers.Names()))

	clock := authkit.NewSystemClock()
	runtime := authkit.AuthRuntime{
		Users:     users,
		Providers: providers,
		States:    authkit.NewMemoryStateStore(serverConfig.StateTTL),
		Clock:     clock,
		Logger:    logger,
		Metrics:   authkit.NewCounterMetrics(),
	}

	router.GET("/", func(contextGin *gin.Context) {
		web.ServeLandingPage(contextGin, webassets.FS, "index.html")
	})

	authkit.MountAuthRoutes(router, serverConfig, runtime)

	protected := router.Group("/")
	protected.Use(authkit.RequireToken(serverConfig, users, clock))
	protected.GET("/trips", web.HandleListTrips(logger, trips))
	protected.GET("/lodging", web.HandleListLodging(logger, trips))
	protected.GET("/trips/:id/lodging", web.HandleTripLodging(logger, trips))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// emptyTripData backs the listing endpoints when no database is configured.
type emptyTripData struct{}

func (emptyTripData) ListTrips(ctx context.Context) ([]tripstore.Trip, error) {
	return []tripstore.Trip{}, nil
}

func (emptyTripData) ListLodging(ctx context.Context) ([]tripstore.Lodging, error) {
	return []tripstore.Lodging{}, nil
}

func (emptyTripData) LodgingForTrip(ctx context.Context, tripID uint) ([]tripstore.Lodging, error) {
	return []tripstore.Lodging{}, nil
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
