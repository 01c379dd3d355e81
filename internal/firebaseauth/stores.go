package firebaseauth

import (
	"context"
	"time"
)

// User is the host-owned identity record. Empty strings mean unset.
type User struct {
	ID            string
	Email         string
	Name          string
	Image         string
	EmailVerified bool
}

// UserUpdate carries the fields to refresh on an existing user. Nil pointers
// leave the stored value untouched.
type UserUpdate struct {
	Name          *string
	Image         *string
	EmailVerified *bool
}

// AccountLink relates one local user to one external provider identity.
type AccountLink struct {
	UserID            string
	Provider          string
	ProviderAccountID string
	AccessToken       string
	ExpiresAt         time.Time
}

// Session is the host-owned session record minted on successful sign-in.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// UserStore reads and writes host user records. Get calls return (nil, nil)
// when no record matches.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user User) (*User, error)
	UpdateUser(ctx context.Context, userID string, update UserUpdate) error
}

// AccountStore creates provider account links. Implementations must return
// ErrDuplicateAccountLink when the (provider, providerAccountID) pair already
// exists; concurrent sign-ins for the same identity make that race routine.
type AccountStore interface {
	CreateAccount(ctx context.Context, link AccountLink) error
}

// AccountGetter is an optional store capability. Stores without it degrade to
// the email-lookup path during reconciliation.
type AccountGetter interface {
	GetAccount(ctx context.Context, provider string, providerAccountID string) (*AccountLink, error)
}

// AccountUpserter is an optional store capability used in preference to
// CreateAccount when available.
type AccountUpserter interface {
	UpsertAccount(ctx context.Context, link AccountLink) error
}

// SessionStore creates host session records.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*Session, error)
}

// Store is the full storage contract the plugin requires from the host.
type Store interface {
	UserStore
	AccountStore
	SessionStore
}
