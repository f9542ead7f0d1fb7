package authkit

import (
	"net/http"
	"time"
)

// ServerConfig configures token issuance, redirect targets, and cookies.
// Immutable after process start.
type ServerConfig struct {
	JWTSigningKey     []byte
	JWTIssuer         string
	OAuthTokenTTL     time.Duration
	LocalTokenTTL     time.Duration
	StateTTL          time.Duration
	ExternalBaseURL   string
	LoginRedirectURL  string
	LogoutRedirectURL string
	SessionCookieName string
	CookieDomain      string
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
}
