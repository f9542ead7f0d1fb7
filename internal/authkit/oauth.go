package authkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// EmailExtractor projects a provider's user-info response onto an email address.
type EmailExtractor func(payload []byte) (string, error)

// Provider describes one configured OAuth2 provider.
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	ExtractEmail EmailExtractor
	// BareAuthorize omits response_type and scope from the authorize
	// redirect, which Facebook's dialog endpoint expects.
	BareAuthorize bool
}

// AuthCodeURL builds the provider authorization redirect carrying the
// anti-forgery state.
func (provider Provider) AuthCodeURL(redirectURI string, state string) string {
	if provider.BareAuthorize {
		query := url.Values{}
		query.Set("client_id", provider.ClientID)
		query.Set("redirect_uri", redirectURI)
		query.Set("state", state)
		return provider.AuthorizeURL + "?" + query.Encode()
	}
	return provider.endpoint(redirectURI).AuthCodeURL(state)
}

// Exchange trades an authorization code for the provider access token.
func (provider Provider) Exchange(ctx context.Context, client *http.Client, code string, redirectURI string) (string, error) {
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	token, exchangeErr := provider.endpoint(redirectURI).Exchange(ctx, code)
	if exchangeErr != nil {
		return "", fmt.Errorf("oauth.exchange.%s: %w", provider.Name, ErrTokenExchangeFailed)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return "", fmt.Errorf("oauth.exchange.%s: %w", provider.Name, ErrTokenExchangeFailed)
	}
	return token.AccessToken, nil
}

// FetchEmail retrieves the provider user-info payload with the access token as
// a bearer credential and applies the provider's email projection.
func (provider Provider) FetchEmail(ctx context.Context, client *http.Client, accessToken string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserInfoURL, nil)
	if requestErr != nil {
		return "", fmt.Errorf("oauth.userinfo.%s: %w", provider.Name, ErrUserInfoFetchFailed)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	request.Header.Set("Accept", "application/json")

	response, doErr := client.Do(request)
	if doErr != nil {
		return "", fmt.Errorf("oauth.userinfo.%s: %w", provider.Name, ErrUserInfoFetchFailed)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth.userinfo.%s: status %d: %w", provider.Name, response.StatusCode, ErrUserInfoFetchFailed)
	}
	payload, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if readErr != nil {
		return "", fmt.Errorf("oauth.userinfo.%s: %w", provider.Name, ErrUserInfoFetchFailed)
	}
	email, extractErr := provider.ExtractEmail(payload)
	if extractErr != nil || strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("oauth.userinfo.%s: %w", provider.Name, ErrUserInfoFetchFailed)
	}
	return email, nil
}

func (provider Provider) endpoint(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       provider.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   provider.AuthorizeURL,
			TokenURL:  provider.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ProviderRegistry holds the configured providers keyed by name.
type ProviderRegistry struct {
	providers map[string]Provider
}

// NewProviderRegistry registers the given providers. Names must be unique.
func NewProviderRegistry(list ...Provider) *ProviderRegistry {
	providers := make(map[string]Provider, len(list))
	for _, provider := range list {
		providers[provider.Name] = provider
	}
	return &ProviderRegistry{providers: providers}
}

// Get returns the provider by name or ErrUnknownProvider.
func (registry *ProviderRegistry) Get(name string) (Provider, error) {
	provider, ok := registry.providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return provider, nil
}

// Names lists the registered provider names.
func (registry *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	return names
}
