package authkit

import (
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

type controllableClock struct {
	current time.Time
}

func (clock *controllableClock) Now() time.Time {
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

func TestMintLoginTokenRejectsEmptyEmail(t *testing.T) {
	t.Parallel()

	_, _, err := MintLoginToken(fixedClock{timestamp: time.Unix(1700000000, 0)}, "", "issuer", []byte("signing-key"), time.Minute)
	if err == nil {
		t.Fatalf("expected error when email is empty")
	}

	expected := "jwt.mint.failure: email must be non-empty"
	if err.Error() != expected {
		t.Fatalf("expected error %q, got %q", expected, err.Error())
	}
}

func TestMintLoginTokenCarriesClockTimestamps(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	token, expiresAt, err := MintLoginToken(fixedClock{timestamp: reference}, "user@example.com", "issuer", []byte("signing-key"), 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected signed token")
	}
	expectedExpiry := reference.Add(5 * time.Minute)
	if !expiresAt.Equal(expectedExpiry) {
		t.Fatalf("expected expiry %v, got %v", expectedExpiry, expiresAt)
	}
}

func TestParseLoginTokenRoundTrip(t *testing.T) {
	t.Parallel()

	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	signingKey := []byte("signing-key")

	token, _, err := MintLoginToken(clock, "user@example.com", "issuer", signingKey, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected mint error: %v", err)
	}

	claims, parseErr := ParseLoginToken(clock, token, "issuer", signingKey)
	if parseErr != nil {
		t.Fatalf("unexpected parse error: %v", parseErr)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("unexpected email claim: %q", claims.Email)
	}
}

func TestParseLoginTokenRejectsExpired(t *testing.T) {
	t.Parallel()

	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	signingKey := []byte("signing-key")

	token, _, err := MintLoginToken(clock, "user@example.com", "issuer", signingKey, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected mint error: %v", err)
	}

	clock.Advance(6 * time.Minute)

	if _, parseErr := ParseLoginToken(clock, token, "issuer", signingKey); parseErr == nil {
		t.Fatalf("expected error for expired token")
	}
}

func TestParseLoginTokenRejectsWrongKeyAndIssuer(t *testing.T) {
	t.Parallel()

	clock := fixedClock{timestamp: time.Unix(1700000000, 0).UTC()}
	token, _, err := MintLoginToken(clock, "user@example.com", "issuer", []byte("signing-key"), 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected mint error: %v", err)
	}

	if _, parseErr := ParseLoginToken(clock, token, "issuer", []byte("other-key")); parseErr == nil {
		t.Fatalf("expected error for wrong signing key")
	}
	if _, parseErr := ParseLoginToken(clock, token, "other-issuer", []byte("signing-key")); parseErr == nil {
		t.Fatalf("expected error for wrong issuer")
	}
}
