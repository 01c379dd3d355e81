package firebaseauth

import (
	"context"
	"fmt"
	"time"
)

// SessionMinter creates host session records with a fixed day-count TTL.
type SessionMinter struct {
	sessions SessionStore
	ttlDays  int
	now      func() time.Time
}

// NewSessionMinter constructs a minter over the host session store.
func NewSessionMinter(sessions SessionStore, ttlDays int) *SessionMinter {
	if sessions == nil {
		panic("firebaseauth: session minter requires a session store")
	}
	if ttlDays <= 0 {
		ttlDays = defaultSessionExpiresInDays
	}
	return &SessionMinter{
		sessions: sessions,
		ttlDays:  ttlDays,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Mint creates a fresh session for the user. Failure is fatal to the sign-in
// attempt and is never retried.
func (minter *SessionMinter) Mint(ctx context.Context, userID string) (*Session, error) {
	expiresAt := minter.now().Add(time.Duration(minter.ttlDays) * 24 * time.Hour)
	session, createErr := minter.sessions.CreateSession(ctx, userID, expiresAt)
	if createErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, createErr)
	}
	return session, nil
}
