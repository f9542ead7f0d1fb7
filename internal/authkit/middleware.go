package authkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextAccountKey is where RequireToken stores the resolved UserAccount.
const ContextAccountKey = "auth_account"

// RequireToken guards protected endpoints. The bearer token must carry a
// valid signature and expiry, and must still be the user's current token:
// a superseded token is rejected even before it expires.
func RequireToken(configuration ServerConfig, users UserStore, clock Clock) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		token, tokenErr := bearerToken(contextGin.Request)
		if tokenErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "token missing"})
			return
		}
		account, resolveErr := resolveTokenAccount(contextGin, configuration, users, clock, token)
		if resolveErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		contextGin.Set(ContextAccountKey, account)
		contextGin.Next()
	}
}

// AccountFromContext retrieves the account injected by RequireToken.
func AccountFromContext(contextGin *gin.Context) (UserAccount, bool) {
	value, found := contextGin.Get(ContextAccountKey)
	if !found {
		return UserAccount{}, false
	}
	account, ok := value.(UserAccount)
	return account, ok
}

func bearerToken(request *http.Request) (string, error) {
	header := request.Header.Get("Authorization")
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

func resolveTokenAccount(contextGin *gin.Context, configuration ServerConfig, users UserStore, clock Clock, token string) (UserAccount, error) {
	if _, parseErr := ParseLoginToken(clock, token, configuration.JWTIssuer, configuration.JWTSigningKey); parseErr != nil {
		return UserAccount{}, parseErr
	}
	account, findErr := users.FindByToken(contextGin.Request.Context(), token)
	if findErr != nil {
		return UserAccount{}, ErrInvalidToken
	}
	return account, nil
}
