package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginClaims are embedded in every issued bearer token.
type LoginClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// MintLoginToken creates a signed HS256 bearer token bound to the user's email.
func MintLoginToken(clock Clock, email string, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(email) == "" {
		return "", time.Time{}, errors.New("jwt.mint.failure: email must be non-empty")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, LoginClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseLoginToken verifies signature, expiry, and issuer of a bearer token.
func ParseLoginToken(clock Clock, tokenString string, issuer string, signingKey []byte) (*LoginClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("jwt.parse.failure: %w", ErrMissingToken)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &LoginClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return clock.Now()
	}))
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("jwt.parse.failure: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*LoginClaims)
	if !ok {
		return nil, fmt.Errorf("jwt.parse.failure: %w", ErrInvalidToken)
	}
	if issuer != "" && claims.Issuer != issuer {
		return nil, fmt.Errorf("jwt.parse.failure: %w", ErrInvalidToken)
	}
	return claims, nil
}
