// Package firebaseauthpg provides a PostgreSQL storage adapter for the
// firebaseauth plugin using pgx directly, for hosts that do not run GORM.
package firebaseauthpg

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yultyyev/better-auth-firebase-auth/internal/firebaseauth"
)

const uniqueViolationCode = "23505"

// Store implements the plugin's Store contract, including the optional
// account lookup and upsert capabilities, on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store satisfies the full plugin contract plus both optional capabilities.
var (
	_ firebaseauth.Store           = (*Store)(nil)
	_ firebaseauth.AccountGetter   = (*Store)(nil)
	_ firebaseauth.AccountUpserter = (*Store)(nil)
)

// NewStore constructs a Postgres-backed store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetUser loads a user by id, returning nil when absent.
func (store *Store) GetUser(ctx context.Context, userID string) (*firebaseauth.User, error) {
	row := store.pool.QueryRow(ctx, `
SELECT id, email, name, image, email_verified FROM users WHERE id = $1
`, userID)
	return scanUser(row)
}

// GetUserByEmail loads a user by email, returning nil when absent.
func (store *Store) GetUserByEmail(ctx context.Context, email string) (*firebaseauth.User, error) {
	row := store.pool.QueryRow(ctx, `
SELECT id, email, name, image, email_verified FROM users WHERE email = $1 LIMIT 1
`, email)
	return scanUser(row)
}

// CreateUser inserts a new user row.
func (store *Store) CreateUser(ctx context.Context, user firebaseauth.User) (*firebaseauth.User, error) {
	userID, idErr := randomID()
	if idErr != nil {
		return nil, idErr
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO users (id, email, name, image, email_verified, created_at_unix)
VALUES ($1, $2, $3, $4, $5, $6)
`, userID, user.Email, user.Name, user.Image, user.EmailVerified, time.Now().UTC().Unix())
	if execErr != nil {
		return nil, fmt.Errorf("pg_store.create_user: %w", execErr)
	}
	user.ID = userID
	return &user, nil
}

// UpdateUser applies the non-nil fields of the update.
func (store *Store) UpdateUser(ctx context.Context, userID string, update firebaseauth.UserUpdate) error {
	tag, execErr := store.pool.Exec(ctx, `
UPDATE users SET
    name = COALESCE($2, name),
    image = COALESCE($3, image),
    email_verified = COALESCE($4, email_verified)
WHERE id = $1
`, userID, update.Name, update.Image, update.EmailVerified)
	if execErr != nil {
		return fmt.Errorf("pg_store.update_user: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return firebaseauth.ErrUserNotFound
	}
	return nil
}

// GetAccount loads the link for the provider identity, returning nil when absent.
func (store *Store) GetAccount(ctx context.Context, provider string, providerAccountID string) (*firebaseauth.AccountLink, error) {
	var link firebaseauth.AccountLink
	var expiresAtUnix int64
	scanErr := store.pool.QueryRow(ctx, `
SELECT user_id, provider, provider_account_id, access_token, expires_at_unix
FROM provider_accounts WHERE provider = $1 AND provider_account_id = $2
`, provider, providerAccountID).Scan(&link.UserID, &link.Provider, &link.ProviderAccountID, &link.AccessToken, &expiresAtUnix)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pg_store.get_account: %w", scanErr)
	}
	if expiresAtUnix > 0 {
		link.ExpiresAt = time.Unix(expiresAtUnix, 0).UTC()
	}
	return &link, nil
}

// CreateAccount inserts a link row, translating unique violations into
// firebaseauth.ErrDuplicateAccountLink.
func (store *Store) CreateAccount(ctx context.Context, link firebaseauth.AccountLink) error {
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO provider_accounts (provider, provider_account_id, user_id, access_token, expires_at_unix, updated_at_unix)
VALUES ($1, $2, $3, $4, $5, $6)
`, link.Provider, link.ProviderAccountID, link.UserID, link.AccessToken, expiresAtUnix(link), time.Now().UTC().Unix())
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolationCode {
			return firebaseauth.ErrDuplicateAccountLink
		}
		return fmt.Errorf("pg_store.create_account: %w", execErr)
	}
	return nil
}

// UpsertAccount inserts or refreshes the link atomically.
func (store *Store) UpsertAccount(ctx context.Context, link firebaseauth.AccountLink) error {
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO provider_accounts (provider, provider_account_id, user_id, access_token, expires_at_unix, updated_at_unix)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (provider, provider_account_id) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    expires_at_unix = EXCLUDED.expires_at_unix,
    updated_at_unix = EXCLUDED.updated_at_unix
`, link.Provider, link.ProviderAccountID, link.UserID, link.AccessToken, expiresAtUnix(link), time.Now().UTC().Unix())
	if execErr != nil {
		return fmt.Errorf("pg_store.upsert_account: %w", execErr)
	}
	return nil
}

// CreateSession inserts a session row with a fresh opaque token.
func (store *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*firebaseauth.Session, error) {
	sessionID, idErr := randomID()
	if idErr != nil {
		return nil, idErr
	}
	token, tokenErr := randomID()
	if tokenErr != nil {
		return nil, tokenErr
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO sessions (id, user_id, token, expires_at_unix, created_at_unix)
VALUES ($1, $2, $3, $4, $5)
`, sessionID, userID, token, expiresAt.Unix(), time.Now().UTC().Unix())
	if execErr != nil {
		return nil, fmt.Errorf("pg_store.create_session: %w", execErr)
	}
	return &firebaseauth.Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*firebaseauth.User, error) {
	var user firebaseauth.User
	scanErr := row.Scan(&user.ID, &user.Email, &user.Name, &user.Image, &user.EmailVerified)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pg_store.scan_user: %w", scanErr)
	}
	return &user, nil
}

func expiresAtUnix(link firebaseauth.AccountLink) int64 {
	if link.ExpiresAt.IsZero() {
		return 0
	}
	return link.ExpiresAt.Unix()
}

func randomID() (string, error) {
	randomBytes := make([]byte, 24)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("pg_store.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
