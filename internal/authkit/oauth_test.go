package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestProviderRegistryGet(t *testing.T) {
	t.Parallel()

	registry := NewProviderRegistry(Provider{Name: "google"}, Provider{Name: "github"})

	if _, err := registry.Get("google"); err != nil {
		t.Fatalf("unexpected error for registered provider: %v", err)
	}
	_, err := registry.Get("linkedin")
	if err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if len(registry.Names()) != 2 {
		t.Fatalf("expected two registered names, got %v", registry.Names())
	}
}

func TestAuthCodeURLCarriesResponseTypeAndScope(t *testing.T) {
	t.Parallel()

	provider := GoogleProvider(ProviderCredentials{ClientID: "client-id", ClientSecret: "client-secret"})
	authorizeURL := provider.AuthCodeURL("https://backend.example.com/callback/google", "state-value")

	parsed, parseErr := url.Parse(authorizeURL)
	if parseErr != nil {
		t.Fatalf("failed to parse authorize URL: %v", parseErr)
	}
	query := parsed.Query()
	if query.Get("client_id") != "client-id" {
		t.Fatalf("unexpected client_id: %q", query.Get("client_id"))
	}
	if query.Get("response_type") != "code" {
		t.Fatalf("expected response_type=code, got %q", query.Get("response_type"))
	}
	if query.Get("scope") != "https://www.googleapis.com/auth/userinfo.email" {
		t.Fatalf("unexpected scope: %q", query.Get("scope"))
	}
	if query.Get("state") != "state-value" {
		t.Fatalf("unexpected state: %q", query.Get("state"))
	}
	if query.Get("redirect_uri") != "https://backend.example.com/callback/google" {
		t.Fatalf("unexpected redirect_uri: %q", query.Get("redirect_uri"))
	}
}

func TestAuthCodeURLBareAuthorizeOmitsResponseTypeAndScope(t *testing.T) {
	t.Parallel()

	provider := FacebookProvider(ProviderCredentials{ClientID: "client-id", ClientSecret: "client-secret"})
	authorizeURL := provider.AuthCodeURL("https://backend.example.com/callback/facebook", "state-value")

	parsed, parseErr := url.Parse(authorizeURL)
	if parseErr != nil {
		t.Fatalf("failed to parse authorize URL: %v", parseErr)
	}
	query := parsed.Query()
	if query.Get("client_id") != "client-id" {
		t.Fatalf("unexpected client_id: %q", query.Get("client_id"))
	}
	if query.Has("response_type") {
		t.Fatalf("expected no response_type parameter, got %q", query.Get("response_type"))
	}
	if query.Has("scope") {
		t.Fatalf("expected no scope parameter, got %q", query.Get("scope"))
	}
	if query.Get("state") != "state-value" {
		t.Fatalf("unexpected state: %q", query.Get("state"))
	}
}

func TestEmailExtractors(t *testing.T) {
	t.Parallel()

	google := GoogleProvider(ProviderCredentials{ClientID: "id", ClientSecret: "secret"})
	email, err := google.ExtractEmail([]byte(`{"email":"user@example.com"}`))
	if err != nil || email != "user@example.com" {
		t.Fatalf("google extractor failed: %q, %v", email, err)
	}

	github := GitHubProvider(ProviderCredentials{ClientID: "id", ClientSecret: "secret"})
	email, err = github.ExtractEmail([]byte(`[{"email":"first@example.com"},{"email":"second@example.com"}]`))
	if err != nil || email != "first@example.com" {
		t.Fatalf("github extractor failed: %q, %v", email, err)
	}
	if _, err = github.ExtractEmail([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty github email list")
	}

	facebook := FacebookProvider(ProviderCredentials{ClientID: "id", ClientSecret: "secret"})
	if _, err = facebook.ExtractEmail([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing facebook email")
	}
}

func TestDefaultProvidersSkipsUnconfigured(t *testing.T) {
	t.Parallel()

	providers := DefaultProviders(
		ProviderCredentials{ClientID: "google-id", ClientSecret: "google-secret"},
		ProviderCredentials{},
		ProviderCredentials{ClientID: "fb-id"},
	)
	if len(providers) != 1 {
		t.Fatalf("expected one configured provider, got %d", len(providers))
	}
	if providers[0].Name != "google" {
		t.Fatalf("unexpected provider: %q", providers[0].Name)
	}
}

func newFakeProviderServer(t *testing.T, accessToken string, userInfoPayload string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			writer.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if parseErr := request.ParseForm(); parseErr != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if request.PostForm.Get("grant_type") != "authorization_code" {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if request.PostForm.Get("code") != "auth-code" {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]string{
			"access_token": accessToken,
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(writer http.ResponseWriter, request *http.Request) {
		if !strings.HasPrefix(request.Header.Get("Authorization"), "Bearer ") {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(userInfoPayload))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testProvider(server *httptest.Server) Provider {
	provider := GoogleProvider(ProviderCredentials{ClientID: "client-id", ClientSecret: "client-secret"})
	provider.AuthorizeURL = server.URL + "/authorize"
	provider.TokenURL = server.URL + "/token"
	provider.UserInfoURL = server.URL + "/userinfo"
	return provider
}

func TestProviderExchangeAndFetchEmail(t *testing.T) {
	t.Parallel()

	server := newFakeProviderServer(t, "provider-access-token", `{"email":"user@example.com"}`)
	provider := testProvider(server)

	accessToken, exchangeErr := provider.Exchange(context.Background(), server.Client(), "auth-code", "https://backend.example.com/callback/google")
	if exchangeErr != nil {
		t.Fatalf("unexpected exchange error: %v", exchangeErr)
	}
	if accessToken != "provider-access-token" {
		t.Fatalf("unexpected access token: %q", accessToken)
	}

	email, fetchErr := provider.FetchEmail(context.Background(), server.Client(), accessToken)
	if fetchErr != nil {
		t.Fatalf("unexpected fetch error: %v", fetchErr)
	}
	if email != "user@example.com" {
		t.Fatalf("unexpected email: %q", email)
	}
}

func TestProviderExchangeRejectsBadCode(t *testing.T) {
	t.Parallel()

	server := newFakeProviderServer(t, "provider-access-token", `{"email":"user@example.com"}`)
	provider := testProvider(server)

	_, exchangeErr := provider.Exchange(context.Background(), server.Client(), "wrong-code", "https://backend.example.com/callback/google")
	if !errors.Is(exchangeErr, ErrTokenExchangeFailed) {
		t.Fatalf("expected ErrTokenExchangeFailed, got %v", exchangeErr)
	}
}

func TestProviderFetchEmailRejectsNon200(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	provider := testProvider(server)
	_, fetchErr := provider.FetchEmail(context.Background(), server.Client(), "token")
	if !errors.Is(fetchErr, ErrUserInfoFetchFailed) {
		t.Fatalf("expected ErrUserInfoFetchFailed, got %v", fetchErr)
	}
}
