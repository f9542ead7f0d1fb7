package authkit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryUserStore is an in-memory UserStore intended for tests and dev runs.
type MemoryUserStore struct {
	mutex      sync.Mutex
	byID       map[uint]UserAccount
	sequenceID uint
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byID: make(map[uint]UserAccount)}
}

// FindByEmail returns the user with the given email.
func (store *MemoryUserStore) FindByEmail(ctx context.Context, email string) (UserAccount, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.findLocked(func(account UserAccount) bool {
		return email != "" && account.Email == email
	})
}

// FindByUsername returns the user with the given username.
func (store *MemoryUserStore) FindByUsername(ctx context.Context, username string) (UserAccount, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.findLocked(func(account UserAccount) bool {
		return username != "" && account.Username == username
	})
}

// FindByToken returns the user whose current token equals the given value.
func (store *MemoryUserStore) FindByToken(ctx context.Context, token string) (UserAccount, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.findLocked(func(account UserAccount) bool {
		return token != "" && account.Token == token
	})
}

// Create inserts a new user, enforcing one user per email.
func (store *MemoryUserStore) Create(ctx context.Context, account UserAccount) (UserAccount, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if account.Email != "" {
		if _, err := store.findLocked(func(existing UserAccount) bool {
			return existing.Email == account.Email
		}); err == nil {
			return UserAccount{}, fmt.Errorf("memory_user_store.create: %w", ErrDuplicateAccount)
		}
	}
	store.sequenceID++
	account.ID = store.sequenceID
	store.byID[account.ID] = account
	return account, nil
}

// ReplaceToken overwrites the user's current token.
func (store *MemoryUserStore) ReplaceToken(ctx context.Context, userID uint, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	account, ok := store.byID[userID]
	if !ok {
		return fmt.Errorf("memory_user_store.replace_token: %w", ErrUserNotFound)
	}
	account.Token = token
	store.byID[userID] = account
	return nil
}

func (store *MemoryUserStore) findLocked(match func(UserAccount) bool) (UserAccount, error) {
	for _, account := range store.byID {
		if match(account) {
			return account, nil
		}
	}
	return UserAccount{}, ErrUserNotFound
}
