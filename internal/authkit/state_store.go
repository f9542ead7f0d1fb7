package authkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// StateStore associates a browser session with the anti-forgery state value
// expected on the matching OAuth2 callback. Values are one-time: Consume
// discards the entry whether or not the comparison succeeds.
type StateStore interface {
	// Issue creates a fresh state value for the session, replacing any
	// previous one.
	Issue(ctx context.Context, sessionID string) (string, error)
	// Consume compares the supplied state against the stored value and
	// invalidates it.
	Consume(ctx context.Context, sessionID string, state string) error
}

type stateEntry struct {
	value     string
	expiresAt time.Time
}

type memoryStateStore struct {
	mutex     sync.Mutex
	entries   map[string]stateEntry
	ttl       time.Duration
	now       func() time.Time
	valueSize int
}

// NewMemoryStateStore constructs an in-memory StateStore with the provided TTL.
func NewMemoryStateStore(ttl time.Duration) StateStore {
	return &memoryStateStore{
		entries:   make(map[string]stateEntry),
		ttl:       ttl,
		now:       time.Now,
		valueSize: 32,
	}
}

func (store *memoryStateStore) Issue(ctx context.Context, sessionID string) (string, error) {
	value, err := randomURLToken(store.valueSize)
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[sessionID] = stateEntry{
		value:     value,
		expiresAt: store.now().Add(store.ttl),
	}
	return value, nil
}

func (store *memoryStateStore) Consume(ctx context.Context, sessionID string, state string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()
	entry, ok := store.entries[sessionID]
	if !ok {
		return ErrStateNotFound
	}
	delete(store.entries, sessionID)
	if store.now().After(entry.expiresAt) {
		return ErrStateExpired
	}
	if state == "" || state != entry.value {
		return ErrStateMismatch
	}
	return nil
}

func (store *memoryStateStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.now()
	for sessionID, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, sessionID)
		}
	}
}

func randomURLToken(size int) (string, error) {
	buffer := make([]byte, size)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
