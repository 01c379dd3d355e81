package firebaseauth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store intended for tests and dev. It supports
// the optional account lookup and upsert capabilities.
type MemoryStore struct {
	mutex          sync.Mutex
	usersByID      map[string]*User
	userIDsByEmail map[string]string
	linksByKey     map[string]*AccountLink
	sessionsByID   map[string]*Session
	sequenceID     uint64
}

var (
	_ Store           = (*MemoryStore)(nil)
	_ AccountGetter   = (*MemoryStore)(nil)
	_ AccountUpserter = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByID:      make(map[string]*User),
		userIDsByEmail: make(map[string]string),
		linksByKey:     make(map[string]*AccountLink),
		sessionsByID:   make(map[string]*Session),
	}
}

// GetUser returns the user with the given id, or nil when absent.
func (store *MemoryStore) GetUser(ctx context.Context, userID string) (*User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.usersByID[userID]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// GetUserByEmail returns the user owning the email, or nil when absent.
func (store *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	userID, ok := store.userIDsByEmail[email]
	if !ok {
		return nil, nil
	}
	record := store.usersByID[userID]
	if record == nil {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// CreateUser inserts a new user and assigns its id.
func (store *MemoryStore) CreateUser(ctx context.Context, user User) (*User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.sequenceID++
	user.ID = fmt.Sprintf("user-%d", store.sequenceID)
	record := user
	store.usersByID[user.ID] = &record
	if user.Email != "" {
		store.userIDsByEmail[user.Email] = user.ID
	}
	clone := record
	return &clone, nil
}

// UpdateUser applies the non-nil fields of the update.
func (store *MemoryStore) UpdateUser(ctx context.Context, userID string, update UserUpdate) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.usersByID[userID]
	if !ok {
		return ErrUserNotFound
	}
	if update.Name != nil {
		record.Name = *update.Name
	}
	if update.Image != nil {
		record.Image = *update.Image
	}
	if update.EmailVerified != nil {
		record.EmailVerified = *update.EmailVerified
	}
	return nil
}

// GetAccount returns the link for the provider identity, or nil when absent.
func (store *MemoryStore) GetAccount(ctx context.Context, provider string, providerAccountID string) (*AccountLink, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	link, ok := store.linksByKey[accountKey(provider, providerAccountID)]
	if !ok {
		return nil, nil
	}
	clone := *link
	return &clone, nil
}

// CreateAccount inserts a link, reporting ErrDuplicateAccountLink when the
// provider identity is already linked.
func (store *MemoryStore) CreateAccount(ctx context.Context, link AccountLink) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	key := accountKey(link.Provider, link.ProviderAccountID)
	if _, exists := store.linksByKey[key]; exists {
		return ErrDuplicateAccountLink
	}
	record := link
	store.linksByKey[key] = &record
	return nil
}

// UpsertAccount inserts or refreshes the link for the provider identity.
func (store *MemoryStore) UpsertAccount(ctx context.Context, link AccountLink) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	key := accountKey(link.Provider, link.ProviderAccountID)
	if existing, exists := store.linksByKey[key]; exists {
		existing.AccessToken = link.AccessToken
		existing.ExpiresAt = link.ExpiresAt
		return nil
	}
	record := link
	store.linksByKey[key] = &record
	return nil
}

// CreateSession mints a session record with a fresh opaque token.
func (store *MemoryStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*Session, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	sessionID, idErr := newRecordID(time.Now().UTC())
	if idErr != nil {
		return nil, idErr
	}
	token, tokenErr := generateSessionToken()
	if tokenErr != nil {
		return nil, tokenErr
	}
	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	store.sessionsByID[sessionID] = session
	clone := *session
	return &clone, nil
}

// SessionCount reports how many sessions have been created; used by tests.
func (store *MemoryStore) SessionCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.sessionsByID)
}

func accountKey(provider string, providerAccountID string) string {
	return provider + ":" + providerAccountID
}
