package authkit

import (
	"encoding/json"
	"errors"
)

// ProviderCredentials carries the client identifier and secret issued by a
// provider's developer console.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both credential halves are present.
func (credentials ProviderCredentials) Configured() bool {
	return credentials.ClientID != "" && credentials.ClientSecret != ""
}

var errEmailAbsent = errors.New("oauth.userinfo.email_absent")

// GoogleProvider returns the Google authorization-code provider.
// https://developers.google.com/identity/protocols/oauth2/web-server
func GoogleProvider(credentials ProviderCredentials) Provider {
	return Provider{
		Name:         "google",
		ClientID:     credentials.ClientID,
		ClientSecret: credentials.ClientSecret,
		AuthorizeURL: "https://accounts.google.com/o/oauth2/auth",
		TokenURL:     "https://accounts.google.com/o/oauth2/token",
		UserInfoURL:  "https://www.googleapis.com/oauth2/v3/userinfo",
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
		ExtractEmail: func(payload []byte) (string, error) {
			var info struct {
				Email string `json:"email"`
			}
			if err := json.Unmarshal(payload, &info); err != nil {
				return "", err
			}
			if info.Email == "" {
				return "", errEmailAbsent
			}
			return info.Email, nil
		},
	}
}

// GitHubProvider returns the GitHub authorization-code provider. GitHub's
// user-info endpoint returns an array of email records; the first entry wins.
// https://docs.github.com/en/apps/oauth-apps/building-oauth-apps/authorizing-oauth-apps
func GitHubProvider(credentials ProviderCredentials) Provider {
	return Provider{
		Name:         "github",
		ClientID:     credentials.ClientID,
		ClientSecret: credentials.ClientSecret,
		AuthorizeURL: "https://github.com/login/oauth/authorize",
		TokenURL:     "https://github.com/login/oauth/access_token",
		UserInfoURL:  "https://api.github.com/user/emails",
		Scopes:       []string{"user:email"},
		ExtractEmail: func(payload []byte) (string, error) {
			var records []struct {
				Email string `json:"email"`
			}
			if err := json.Unmarshal(payload, &records); err != nil {
				return "", err
			}
			if len(records) == 0 || records[0].Email == "" {
				return "", errEmailAbsent
			}
			return records[0].Email, nil
		},
	}
}

// FacebookProvider returns the Facebook authorization-code provider. The
// dialog endpoint rejects response_type/scope, so the authorize redirect
// carries only client_id, redirect_uri, and state.
func FacebookProvider(credentials ProviderCredentials) Provider {
	return Provider{
		Name:          "facebook",
		ClientID:      credentials.ClientID,
		ClientSecret:  credentials.ClientSecret,
		AuthorizeURL:  "https://www.facebook.com/dialog/oauth",
		TokenURL:      "https://graph.facebook.com/oauth/access_token",
		UserInfoURL:   "https://graph.facebook.com/me?fields=email",
		Scopes:        []string{"email"},
		BareAuthorize: true,
		ExtractEmail: func(payload []byte) (string, error) {
			var info struct {
				Email string `json:"email"`
			}
			if err := json.Unmarshal(payload, &info); err != nil {
				return "", err
			}
			if info.Email == "" {
				return "", errEmailAbsent
			}
			return info.Email, nil
		},
	}
}

// DefaultProviders builds the registry entries for every provider whose
// credentials are configured.
func DefaultProviders(google ProviderCredentials, github ProviderCredentials, facebook ProviderCredentials) []Provider {
	providers := make([]Provider, 0, 3)
	if google.Configured() {
		providers = append(providers, GoogleProvider(google))
	}
	if github.Configured() {
		providers = append(providers, GitHubProvider(github))
	}
	if facebook.Configured() {
		providers = append(providers, FacebookProvider(facebook))
	}
	return providers
}
