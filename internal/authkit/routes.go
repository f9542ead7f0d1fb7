package authkit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthRuntime bundles the collaborators the auth routes depend on. Nil
// optional fields fall back to no-op or system defaults.
type AuthRuntime struct {
	Users      UserStore
	Providers  *ProviderRegistry
	States     StateStore
	Clock      Clock
	Logger     *zap.Logger
	Metrics    MetricsRecorder
	HTTPClient *http.Client
}

func (runtime AuthRuntime) withDefaults() AuthRuntime {
	if runtime.Clock == nil {
		runtime.Clock = NewSystemClock()
	}
	if runtime.Logger == nil {
		runtime.Logger = zap.NewNop()
	}
	if runtime.Metrics == nil {
		runtime.Metrics = NewCounterMetrics()
	}
	if runtime.HTTPClient == nil {
		runtime.HTTPClient = http.DefaultClient
	}
	if runtime.Providers == nil {
		runtime.Providers = NewProviderRegistry()
	}
	return runtime
}

// MountAuthRoutes registers /authorize/:provider, /callback/:provider,
// /signup, /login, /login_jwt, /logout, and /unauth.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, runtime AuthRuntime) {
	runtime = runtime.withDefaults()

	router.GET("/logout", func(contextGin *gin.Context) {
		clearSessionCookie(contextGin, configuration)
		flashRedirect(contextGin, "You have been logged out.")
	})

	router.GET("/unauth", func(contextGin *gin.Context) {
		clearSessionCookie(contextGin, configuration)
		flashRedirect(contextGin, "Authorization Failed")
	})

	router.GET("/authorize/:provider", func(contextGin *gin.Context) {
		handleAuthorize(contextGin, configuration, runtime)
	})

	router.GET("/callback/:provider", func(contextGin *gin.Context) {
		handleCallback(contextGin, configuration, runtime)
	})

	router.POST("/signup", func(contextGin *gin.Context) {
		handleSignup(contextGin, configuration, runtime)
	})

	router.POST("/login", func(contextGin *gin.Context) {
		handleLogin(contextGin, configuration, runtime)
	})

	router.POST("/login_jwt", func(contextGin *gin.Context) {
		handleTokenExchange(contextGin, configuration, runtime)
	})
}

func handleAuthorize(contextGin *gin.Context, configuration ServerConfig, runtime AuthRuntime) {
	// An already-authenticated caller is redirected away rather than
	// re-authorized.
	if token, tokenErr := bearerToken(contextGin.Request); tokenErr == nil {
		if _, resolveErr := resolveTokenAccount(contextGin, configuration, runtime.Users, runtime.Clock, token); resolveErr == nil {
			contextGin.Redirect(http.StatusFound, configuration.LogoutRedirectURL)
			return
		}
	}

	provider, providerErr := runtime.Providers.Get(contextGin.Param("provider"))
	if providerErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": ErrUnknownProvider.Error()})
		return
	}

	sessionID, sessionErr := ensureSessionID(contextGin, configuration)
	if sessionErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	state, stateErr := runtime.States.Issue(contextGin.Request.Context(), sessionID)
	if stateErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	runtime.Metrics.Increment(MetricAuthorizeStarted)
	runtime.Logger.Info("oauth authorize started",
		zap.String("code", "auth.authorize.redirect"),
		zap.String("provider", provider.Name))

	contextGin.Redirect(http.StatusFound, provider.AuthCodeURL(callbackRedirectURI(configuration, provider.Name), state))
}

func handleCallback(contextGin *gin.Context, configuration ServerConfig, runtime AuthRuntime) {
	provider, providerErr := runtime.Providers.Get(contextGin.Param("provider"))
	if providerErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": ErrUnknownProvider.Error()})
		return
	}

	// Provider-reported errors terminate the flow but are not a hard
	// failure: each error* parameter becomes a flash message on the home
	// screen.
	if messages := providerErrorMessages(contextGin.Request.URL.Query()); len(messages) > 0 {
		runtime.Metrics.Increment(MetricCallbackFailure)
		runtime.Logger.Warn("oauth callback returned error",
			zap.String("code", "auth.callback.provider_error"),
			zap.String("provider", provider.Name),
			zap.Strings("messages", messages))
		flashRedirect(contextGin, messages...)
		return
	}

	sessionID, cookieErr := contextGin.Cookie(configuration.SessionCookieName)
	if cookieErr != nil || strings.TrimSpace(sessionID) == "" {
		abortCallback(contextGin, runtime, provider.Name, "auth.callback.missing_session", ErrStateMismatch)
		return
	}
	if consumeErr := runtime.States.Consume(contextGin.Request.Context(), sessionID, contextGin.Query("state")); consumeErr != nil {
		abortCallback(contextGin, runtime, provider.Name, "auth.callback.state_mismatch", ErrStateMismatch)
		return
	}

	code := contextGin.Query("code")
	if strings.TrimSpace(code) == "" {
		abortCallback(contextGin, runtime, provider.Name, "auth.callback.missing_code", ErrMissingCode)
		return
	}

	accessToken, exchangeErr := provider.Exchange(contextGin.Request.Context(), runtime.HTTPClient, code, callbackRedirectURI(configuration, provider.Name))
	if exchangeErr != nil {
		abortCallback(contextGin, runtime, provider.Name, "auth.callback.exchange_failed", ErrTokenExchangeFailed)
		return
	}

	email, fetchErr := provider.FetchEmail(contextGin.Request.Context(), runtime.HTTPClient, accessToken)
	if fetchErr != nil {
		abortCallback(contextGin, runtime, provider.Name, "auth.callback.userinfo_failed", ErrUserInfoFetchFailed)
		return
	}

	account, resolveErr := resolveExternalAccount(contextGin.Request.Context(), runtime.Users, email)
	if resolveErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	token, issueErr := issueAndStoreToken(contextGin.Request.Context(), configuration, runtime, account, configuration.OAuthTokenTTL)
	if issueErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	runtime.Metrics.Increment(MetricCallbackSuccess)
	runtime.Logger.Info("oauth callback completed",
		zap.String("code", "auth.callback.success"),
		zap.String("provider", provider.Name),
		zap.Uint("user_id", account.ID))

	completion := configuration.LoginRedirectURL + "?code=" + url.QueryEscape(token)
	contextGin.Redirect(http.StatusFound, completion)
}

func handleSignup(contextGin *gin.Context, configuration ServerConfig, runtime AuthRuntime) {
	var inbound struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := contextGin.BindJSON(&inbound); err != nil ||
		strings.TrimSpace(inbound.Username) == "" ||
		strings.TrimSpace(inbound.Email) == "" ||
		inbound.Password == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	if _, err := runtime.Users.FindByEmail(contextGin.Request.Context(), inbound.Email); err == nil {
		runtime.Metrics.Increment(MetricSignupDuplicate)
		contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": ErrDuplicateAccount.Error()})
		return
	}

	hash, hashErr := bcrypt.GenerateFromPassword([]byte(inbound.Password), bcrypt.DefaultCost)
	if hashErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	account, createErr := runtime.Users.Create(contextGin.Request.Context(), UserAccount{
		Username:     inbound.Username,
		Email:        inbound.Email,
		PasswordHash: string(hash),
	})
	if createErr != nil {
		// The unique index closes the window between the pre-check and
		// the insert.
		runtime.Metrics.Increment(MetricSignupDuplicate)
		contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": ErrDuplicateAccount.Error()})
		return
	}

	if _, issueErr := issueAndStoreToken(contextGin.Request.Context(), configuration, runtime, account, configuration.LocalTokenTTL); issueErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	runtime.Metrics.Increment(MetricSignupSuccess)
	runtime.Logger.Info("local account created",
		zap.String("code", "auth.signup.success"),
		zap.Uint("user_id", account.ID))
	contextGin.Status(http.StatusOK)
}

func handleLogin(contextGin *gin.Context, configuration ServerConfig, runtime AuthRuntime) {
	var inbound struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Username) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	account, findErr := runtime.Users.FindByUsername(contextGin.Request.Context(), inbound.Username)
	if findErr != nil || account.PasswordHash == "" {
		runtime.Metrics.Increment(MetricLoginFailure)
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidCredentials.Error()})
		return
	}
	if compareErr := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(inbound.Password)); compareErr != nil {
		runtime.Metrics.Increment(MetricLoginFailure)
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidCredentials.Error()})
		return
	}

	token, issueErr := issueAndStoreToken(contextGin.Request.Context(), configuration, runtime, account, configuration.LocalTokenTTL)
	if issueErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	runtime.Metrics.Increment(MetricLoginSuccess)
	contextGin.JSON(http.StatusOK, gin.H{"access_token": token})
}

// handleTokenExchange re-validates a previously issued token presented as an
// opaque "code". An unknown code redirects to the logout URL; a known but
// invalid token is a hard 401.
func handleTokenExchange(contextGin *gin.Context, configuration ServerConfig, runtime AuthRuntime) {
	code := contextGin.Query("code")

	account, findErr := runtime.Users.FindByToken(contextGin.Request.Context(), code)
	if findErr != nil {
		runtime.Metrics.Increment(MetricExchangeFailure)
		contextGin.Redirect(http.StatusFound, configuration.LogoutRedirectURL)
		return
	}

	if _, parseErr := ParseLoginToken(runtime.Clock, code, configuration.JWTIssuer, configuration.JWTSigningKey); parseErr != nil {
		runtime.Metrics.Increment(MetricExchangeFailure)
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error()})
		return
	}

	runtime.Metrics.Increment(MetricExchangeSuccess)
	runtime.Logger.Info("token exchange completed",
		zap.String("code", "auth.exchange.success"),
		zap.Uint("user_id", account.ID))
	contextGin.JSON(http.StatusOK, gin.H{"access_token": code})
}

// resolveExternalAccount finds the user owning the email or creates one, with
// the username defaulted to the local part of the email.
func resolveExternalAccount(ctx context.Context, users UserStore, email string) (UserAccount, error) {
	account, findErr := users.FindByEmail(ctx, email)
	if findErr == nil {
		return account, nil
	}
	username := email
	if at := strings.Index(email, "@"); at > 0 {
		username = email[:at]
	}
	created, createErr := users.Create(ctx, UserAccount{
		Username: username,
		Email:    email,
		External: true,
	})
	if createErr != nil {
		return UserAccount{}, fmt.Errorf("auth.resolve_external: %w", createErr)
	}
	return created, nil
}

// issueAndStoreToken mints a bearer token and persists it as the user's
// current token, replacing the previous one in a single update.
func issueAndStoreToken(ctx context.Context, configuration ServerConfig, runtime AuthRuntime, account UserAccount, ttl time.Duration) (string, error) {
	token, _, mintErr := MintLoginToken(runtime.Clock, account.Email, configuration.JWTIssuer, configuration.JWTSigningKey, ttl)
	if mintErr != nil {
		return "", mintErr
	}
	if replaceErr := runtime.Users.ReplaceToken(ctx, account.ID, token); replaceErr != nil {
		return "", replaceErr
	}
	return token, nil
}

func abortCallback(contextGin *gin.Context, runtime AuthRuntime, providerName string, code string, cause error) {
	runtime.Metrics.Increment(MetricCallbackFailure)
	runtime.Logger.Warn("oauth callback aborted",
		zap.String("code", code),
		zap.String("provider", providerName),
		zap.Error(cause))
	contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": cause.Error()})
}

// providerErrorMessages collects every error* query parameter in stable order.
func providerErrorMessages(query url.Values) []string {
	keys := make([]string, 0, len(query))
	for key := range query {
		if strings.HasPrefix(key, "error") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	messages := make([]string, 0, len(keys))
	for _, key := range keys {
		messages = append(messages, fmt.Sprintf("%s: %s", key, query.Get(key)))
	}
	return messages
}

func callbackRedirectURI(configuration ServerConfig, providerName string) string {
	return strings.TrimRight(configuration.ExternalBaseURL, "/") + "/callback/" + providerName
}

func ensureSessionID(contextGin *gin.Context, configuration ServerConfig) (string, error) {
	if existing, err := contextGin.Cookie(configuration.SessionCookieName); err == nil && strings.TrimSpace(existing) != "" {
		return existing, nil
	}
	sessionID, err := randomURLToken(16)
	if err != nil {
		return "", err
	}
	writeSessionCookie(contextGin, configuration, sessionID)
	return sessionID, nil
}

func writeSessionCookie(contextGin *gin.Context, configuration ServerConfig, sessionID string) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   int(configuration.StateTTL.Seconds()),
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearSessionCookie(contextGin *gin.Context, configuration ServerConfig) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

// flashRedirect sends the browser to the home screen with the messages as
// flash query parameters, which the landing page renders.
func flashRedirect(contextGin *gin.Context, messages ...string) {
	query := url.Values{}
	for _, message := range messages {
		query.Add("flash", message)
	}
	target := "/"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	contextGin.Redirect(http.StatusFound, target)
}
