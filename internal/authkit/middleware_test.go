package authkit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newMiddlewareFixture(t *testing.T, clock Clock) (ServerConfig, *MemoryUserStore, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	configuration := ServerConfig{
		JWTSigningKey: []byte("signing-key"),
		JWTIssuer:     "issuer",
	}
	users := NewMemoryUserStore()

	router := gin.New()
	protected := router.Group("/")
	protected.Use(RequireToken(configuration, users, clock))
	protected.GET("/resource", func(contextGin *gin.Context) {
		account, ok := AccountFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"username": account.Username})
	})
	return configuration, users, router
}

func loginTestUser(t *testing.T, configuration ServerConfig, users *MemoryUserStore, clock Clock, ttl time.Duration) string {
	t.Helper()
	account, createErr := users.Create(context.Background(), UserAccount{Username: "alice", Email: "a@x.com"})
	if createErr != nil {
		t.Fatalf("unexpected create error: %v", createErr)
	}
	token, _, mintErr := MintLoginToken(clock, account.Email, configuration.JWTIssuer, configuration.JWTSigningKey, ttl)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}
	if replaceErr := users.ReplaceToken(context.Background(), account.ID, token); replaceErr != nil {
		t.Fatalf("unexpected replace error: %v", replaceErr)
	}
	return token
}

func TestRequireTokenMissingHeader(t *testing.T) {
	t.Parallel()

	clock := fixedClock{timestamp: time.Unix(1700000000, 0).UTC()}
	_, _, router := newMiddlewareFixture(t, clock)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resource", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload["message"] != "token missing" {
		t.Fatalf("unexpected message: %q", payload["message"])
	}
}

func TestRequireTokenInvalidToken(t *testing.T) {
	t.Parallel()

	clock := fixedClock{timestamp: time.Unix(1700000000, 0).UTC()}
	_, _, router := newMiddlewareFixture(t, clock)

	request := httptest.NewRequest(http.MethodGet, "/resource", nil)
	request.Header.Set("Authorization", "Bearer not-a-token")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload["message"] != "invalid token" {
		t.Fatalf("unexpected message: %q", payload["message"])
	}
}

func TestRequireTokenAcceptsCurrentToken(t *testing.T) {
	t.Parallel()

	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	configuration, users, router := newMiddlewareFixture(t, clock)
	token := loginTestUser(t, configuration, users, clock, 5*time.Minute)

	request := httptest.NewRequest(http.MethodGet, "/resource", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestRequireTokenRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	configuration, users, router := newMiddlewareFixture(t, clock)
	token := loginTestUser(t, configuration, users, clock, 5*time.Minute)

	clock.Advance(10 * time.Minute)

	request := httptest.NewRequest(http.MethodGet, "/resource", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", recorder.Code)
	}
}

func TestRequireTokenRejectsSupersededToken(t *testing.T) {
	t.Parallel()

	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	configuration, users, router := newMiddlewareFixture(t, clock)
	firstToken := loginTestUser(t, configuration, users, clock, time.Hour)

	// A second login replaces the stored token; the first stays
	// cryptographically valid but no longer matches any user.
	clock.Advance(time.Second)
	account, findErr := users.FindByToken(context.Background(), firstToken)
	if findErr != nil {
		t.Fatalf("unexpected find error: %v", findErr)
	}
	secondToken, _, mintErr := MintLoginToken(clock, account.Email, configuration.JWTIssuer, configuration.JWTSigningKey, time.Hour)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}
	if replaceErr := users.ReplaceToken(context.Background(), account.ID, secondToken); replaceErr != nil {
		t.Fatalf("unexpected replace error: %v", replaceErr)
	}

	request := httptest.NewRequest(http.MethodGet, "/resource", nil)
	request.Header.Set("Authorization", "Bearer "+firstToken)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for superseded token, got %d", recorder.Code)
	}

	replay := httptest.NewRequest(http.MethodGet, "/resource", nil)
	replay.Header.Set("Authorization", "Bearer "+secondToken)
	replayRecorder := httptest.NewRecorder()
	router.ServeHTTP(replayRecorder, replay)
	if replayRecorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for current token, got %d", replayRecorder.Code)
	}
}
