package authkit

import "errors"

var (
	// ErrUnknownProvider indicates the requested OAuth2 provider is not configured.
	ErrUnknownProvider = errors.New("auth.unknown_provider")
	// ErrStateMismatch indicates the callback state did not match the stored anti-forgery value.
	ErrStateMismatch = errors.New("auth.state_mismatch")
	// ErrMissingCode indicates the provider callback carried no authorization code.
	ErrMissingCode = errors.New("auth.missing_code")
	// ErrTokenExchangeFailed indicates the code-for-token exchange with the provider failed.
	ErrTokenExchangeFailed = errors.New("auth.token_exchange_failed")
	// ErrUserInfoFetchFailed indicates the provider user-info request failed or lacked an email.
	ErrUserInfoFetchFailed = errors.New("auth.userinfo_fetch_failed")
	// ErrInvalidCredentials indicates an unknown username or a failed password comparison.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrInvalidToken indicates a bearer token that failed signature, expiry, or store matching.
	ErrInvalidToken = errors.New("auth.invalid_token")
	// ErrMissingToken indicates a protected request without a bearer token.
	ErrMissingToken = errors.New("auth.missing_token")

	// ErrDuplicateAccount indicates a signup or create for an email that already has a user.
	ErrDuplicateAccount = errors.New("store.duplicate_account")
	// ErrUserNotFound indicates no user matched the lookup key.
	ErrUserNotFound = errors.New("store.user_not_found")

	// ErrStateNotFound indicates no anti-forgery value was stored for the browser session.
	ErrStateNotFound = errors.New("state_store.not_found")
	// ErrStateExpired indicates the stored anti-forgery value expired before the callback.
	ErrStateExpired = errors.New("state_store.expired")
)
