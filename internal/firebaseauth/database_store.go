package firebaseauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("store.unsupported_no_scheme")
)

// DatabaseStore persists users, account links, and sessions using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

var (
	_ Store           = (*DatabaseStore)(nil)
	_ AccountGetter   = (*DatabaseStore)(nil)
	_ AccountUpserter = (*DatabaseStore)(nil)
)

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

type userRecord struct {
	ID            string `gorm:"column:id;primaryKey"`
	Email         string `gorm:"column:email;index"`
	Name          string `gorm:"column:name"`
	Image         string `gorm:"column:image"`
	EmailVerified bool   `gorm:"column:email_verified;not null;default:false"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

type accountRecord struct {
	Provider          string `gorm:"column:provider;primaryKey"`
	ProviderAccountID string `gorm:"column:provider_account_id;primaryKey"`
	UserID            string `gorm:"column:user_id;index;not null"`
	AccessToken       string `gorm:"column:access_token;not null;default:''"`
	ExpiresAtUnix     int64  `gorm:"column:expires_at_unix;not null;default:0"`
	UpdatedAtUnix     int64  `gorm:"column:updated_at_unix;not null"`
}

func (accountRecord) TableName() string {
	return "provider_accounts"
}

type sessionRecord struct {
	ID            string `gorm:"column:id;primaryKey"`
	UserID        string `gorm:"column:user_id;index;not null"`
	Token         string `gorm:"column:token;uniqueIndex;not null"`
	ExpiresAtUnix int64  `gorm:"column:expires_at_unix;not null"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
}

func (sessionRecord) TableName() string {
	return "sessions"
}

// NewDatabaseStore constructs a GORM-backed store. The URL scheme selects the
// driver: postgres:// or sqlite://.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}, &accountRecord{}, &sessionRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// GetUser loads a user by id, returning nil when absent.
func (store *DatabaseStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.get_user.%s: %w", store.driverLabel, err)
	}
	return recordToUser(record), nil
}

// GetUserByEmail loads a user by email, returning nil when absent.
func (store *DatabaseStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.get_user_by_email.%s: %w", store.driverLabel, err)
	}
	return recordToUser(record), nil
}

// CreateUser inserts a new user row and returns the stored record.
func (store *DatabaseStore) CreateUser(ctx context.Context, user User) (*User, error) {
	now := time.Now().UTC()
	recordID, idErr := newRecordID(now)
	if idErr != nil {
		return nil, fmt.Errorf("store.create_user.%s: %w", store.driverLabel, idErr)
	}
	record := userRecord{
		ID:            recordID,
		Email:         user.Email,
		Name:          user.Name,
		Image:         user.Image,
		EmailVerified: user.EmailVerified,
		CreatedAtUnix: now.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("store.create_user.%s: %w", store.driverLabel, err)
	}
	return recordToUser(record), nil
}

// UpdateUser applies the non-nil fields of the update.
func (store *DatabaseStore) UpdateUser(ctx context.Context, userID string, update UserUpdate) error {
	columns := map[string]any{}
	if update.Name != nil {
		columns["name"] = *update.Name
	}
	if update.Image != nil {
		columns["image"] = *update.Image
	}
	if update.EmailVerified != nil {
		columns["email_verified"] = *update.EmailVerified
	}
	if len(columns) == 0 {
		return nil
	}
	result := store.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("store.update_user.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.update_user.%s: %w", store.driverLabel, ErrUserNotFound)
	}
	return nil
}

// GetAccount loads the link for the provider identity, returning nil when absent.
func (store *DatabaseStore) GetAccount(ctx context.Context, provider string, providerAccountID string) (*AccountLink, error) {
	var record accountRecord
	err := store.db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.get_account.%s: %w", store.driverLabel, err)
	}
	link := AccountLink{
		UserID:            record.UserID,
		Provider:          record.Provider,
		ProviderAccountID: record.ProviderAccountID,
		AccessToken:       record.AccessToken,
	}
	if record.ExpiresAtUnix > 0 {
		link.ExpiresAt = time.Unix(record.ExpiresAtUnix, 0).UTC()
	}
	return &link, nil
}

// CreateAccount inserts a link row, translating the driver's unique-violation
// into ErrDuplicateAccountLink.
func (store *DatabaseStore) CreateAccount(ctx context.Context, link AccountLink) error {
	record := accountRecordFromLink(link)
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateAccountLink
		}
		return fmt.Errorf("store.create_account.%s: %w", store.driverLabel, err)
	}
	return nil
}

// UpsertAccount refreshes the access token and expiry of an existing link, or
// inserts the link when the identity has never signed in.
func (store *DatabaseStore) UpsertAccount(ctx context.Context, link AccountLink) error {
	record := accountRecordFromLink(link)
	result := store.db.WithContext(ctx).Model(&accountRecord{}).
		Where("provider = ? AND provider_account_id = ?", link.Provider, link.ProviderAccountID).
		Updates(map[string]any{
			"access_token":    record.AccessToken,
			"expires_at_unix": record.ExpiresAtUnix,
			"updated_at_unix": record.UpdatedAtUnix,
		})
	if result.Error != nil {
		return fmt.Errorf("store.upsert_account.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent sign-in inserted the row between the update and
			// the create; the link exists, which is what upsert promises.
			return nil
		}
		return fmt.Errorf("store.upsert_account.%s: %w", store.driverLabel, err)
	}
	return nil
}

// CreateSession inserts a session row with a fresh opaque token.
func (store *DatabaseStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*Session, error) {
	now := time.Now().UTC()
	sessionID, idErr := newRecordID(now)
	if idErr != nil {
		return nil, fmt.Errorf("store.create_session.%s: %w", store.driverLabel, idErr)
	}
	token, tokenErr := generateSessionToken()
	if tokenErr != nil {
		return nil, fmt.Errorf("store.create_session.%s: %w", store.driverLabel, tokenErr)
	}
	record := sessionRecord{
		ID:            sessionID,
		UserID:        userID,
		Token:         token,
		ExpiresAtUnix: expiresAt.Unix(),
		CreatedAtUnix: now.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("store.create_session.%s: %w", store.driverLabel, err)
	}
	return &Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Unix(record.ExpiresAtUnix, 0).UTC(),
	}, nil
}

func recordToUser(record userRecord) *User {
	return &User{
		ID:            record.ID,
		Email:         record.Email,
		Name:          record.Name,
		Image:         record.Image,
		EmailVerified: record.EmailVerified,
	}
}

func accountRecordFromLink(link AccountLink) accountRecord {
	record := accountRecord{
		Provider:          link.Provider,
		ProviderAccountID: link.ProviderAccountID,
		UserID:            link.UserID,
		AccessToken:       link.AccessToken,
		UpdatedAtUnix:     time.Now().UTC().Unix(),
	}
	if !link.ExpiresAt.IsZero() {
		record.ExpiresAtUnix = link.ExpiresAt.Unix()
	}
	return record
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
