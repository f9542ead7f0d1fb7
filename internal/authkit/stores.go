package authkit

import "context"

// UserAccount is the identity record shared between the credential store and
// the auth handlers. Empty string fields stand for absent optional columns.
type UserAccount struct {
	ID           uint
	Username     string
	Email        string
	PasswordHash string
	Token        string
	External     bool
}

// UserStore persists and retrieves application users. Token is "the current
// token": ReplaceToken overwrites whatever was issued before, so a superseded
// token no longer matches any user.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (UserAccount, error)
	FindByUsername(ctx context.Context, username string) (UserAccount, error)
	FindByToken(ctx context.Context, token string) (UserAccount, error)
	Create(ctx context.Context, account UserAccount) (UserAccount, error)
	ReplaceToken(ctx context.Context, userID uint, token string) error
}
