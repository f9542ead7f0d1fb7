package tripstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cranetrips/backend/internal/authkit"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("trip_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("trip_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("trip_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("trip_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("trip_store.unsupported_no_scheme")
)

// Store persists users, trips, and lodging using GORM. It implements
// authkit.UserStore.
type Store struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *Store) Driver() string {
	return store.driverLabel
}

// Open connects to the database named by the URL scheme and migrates the
// schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("trip_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("trip_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}, &Trip{}, &Lodging{}, &TripLodging{}); migrateErr != nil {
		return nil, fmt.Errorf("trip_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &Store{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// FindByEmail returns the user owning the email address.
func (store *Store) FindByEmail(ctx context.Context, email string) (authkit.UserAccount, error) {
	if strings.TrimSpace(email) == "" {
		return authkit.UserAccount{}, fmt.Errorf("trip_store.find_by_email.%s: %w", store.driverLabel, authkit.ErrUserNotFound)
	}
	return store.findUser(ctx, "find_by_email", "email = ?", email)
}

// FindByUsername returns the user with the given username.
func (store *Store) FindByUsername(ctx context.Context, username string) (authkit.UserAccount, error) {
	if strings.TrimSpace(username) == "" {
		return authkit.UserAccount{}, fmt.Errorf("trip_store.find_by_username.%s: %w", store.driverLabel, authkit.ErrUserNotFound)
	}
	return store.findUser(ctx, "find_by_username", "username = ?", username)
}

// FindByToken returns the user whose current token equals the given value.
func (store *Store) FindByToken(ctx context.Context, token string) (authkit.UserAccount, error) {
	if strings.TrimSpace(token) == "" {
		return authkit.UserAccount{}, fmt.Errorf("trip_store.find_by_token.%s: %w", store.driverLabel, authkit.ErrUserNotFound)
	}
	return store.findUser(ctx, "find_by_token", "token = ?", token)
}

// Create inserts a new user. The unique index on email enforces one user per
// email when the email is set.
func (store *Store) Create(ctx context.Context, account authkit.UserAccount) (authkit.UserAccount, error) {
	record := fromAccount(account)
	record.ID = 0
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return authkit.UserAccount{}, fmt.Errorf("trip_store.create.%s: %w", store.driverLabel, authkit.ErrDuplicateAccount)
		}
		return authkit.UserAccount{}, fmt.Errorf("trip_store.create.%s: %w", store.driverLabel, err)
	}
	return toAccount(record), nil
}

// ReplaceToken overwrites the user's current token in a single UPDATE. The
// previous token stops matching immediately; concurrent logins resolve to
// last writer wins.
func (store *Store) ReplaceToken(ctx context.Context, userID uint, token string) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", userID).
		Update("token", token)
	if result.Error != nil {
		return fmt.Errorf("trip_store.replace_token.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("trip_store.replace_token.%s: %w", store.driverLabel, authkit.ErrUserNotFound)
	}
	return nil
}

// ListTrips returns every trip record.
func (store *Store) ListTrips(ctx context.Context) ([]Trip, error) {
	trips := make([]Trip, 0)
	if err := store.db.WithContext(ctx).Order("id").Find(&trips).Error; err != nil {
		return nil, fmt.Errorf("trip_store.list_trips.%s: %w", store.driverLabel, err)
	}
	return trips, nil
}

// ListLodging returns every lodging record.
func (store *Store) ListLodging(ctx context.Context) ([]Lodging, error) {
	lodgings := make([]Lodging, 0)
	if err := store.db.WithContext(ctx).Order("id").Find(&lodgings).Error; err != nil {
		return nil, fmt.Errorf("trip_store.list_lodging.%s: %w", store.driverLabel, err)
	}
	return lodgings, nil
}

// LodgingForTrip returns the lodging associated with a trip.
func (store *Store) LodgingForTrip(ctx context.Context, tripID uint) ([]Lodging, error) {
	lodgings := make([]Lodging, 0)
	err := store.db.WithContext(ctx).Model(&Lodging{}).
		Joins("JOIN trip_lodgings ON trip_lodgings.lodging_id = lodgings.id").
		Where("trip_lodgings.trip_id = ?", tripID).
		Order("lodgings.id").
		Find(&lodgings).Error
	if err != nil {
		return nil, fmt.Errorf("trip_store.lodging_for_trip.%s: %w", store.driverLabel, err)
	}
	return lodgings, nil
}

// AddTrip inserts a trip record.
func (store *Store) AddTrip(ctx context.Context, trip Trip) (Trip, error) {
	if err := store.db.WithContext(ctx).Create(&trip).Error; err != nil {
		return Trip{}, fmt.Errorf("trip_store.add_trip.%s: %w", store.driverLabel, err)
	}
	return trip, nil
}

// AddLodging inserts a lodging record.
func (store *Store) AddLodging(ctx context.Context, lodging Lodging) (Lodging, error) {
	if err := store.db.WithContext(ctx).Create(&lodging).Error; err != nil {
		return Lodging{}, fmt.Errorf("trip_store.add_lodging.%s: %w", store.driverLabel, err)
	}
	return lodging, nil
}

// LinkLodging associates a lodging with a trip.
func (store *Store) LinkLodging(ctx context.Context, tripID uint, lodgingID uint) error {
	association := TripLodging{TripID: tripID, LodgingID: lodgingID}
	if err := store.db.WithContext(ctx).Create(&association).Error; err != nil {
		return fmt.Errorf("trip_store.link_lodging.%s: %w", store.driverLabel, err)
	}
	return nil
}

func (store *Store) findUser(ctx context.Context, operation string, condition string, value string) (authkit.UserAccount, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where(condition, value).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authkit.UserAccount{}, fmt.Errorf("trip_store.%s.%s: %w", operation, store.driverLabel, authkit.ErrUserNotFound)
		}
		return authkit.UserAccount{}, fmt.Errorf("trip_store.%s.%s: %w", operation, store.driverLabel, err)
	}
	return toAccount(record), nil
}

func toAccount(record userRecord) authkit.UserAccount {
	account := authkit.UserAccount{
		ID:       record.ID,
		Username: record.Username,
		External: record.External,
	}
	if record.Email != nil {
		account.Email = *record.Email
	}
	if record.PasswordHash != nil {
		account.PasswordHash = *record.PasswordHash
	}
	if record.Token != nil {
		account.Token = *record.Token
	}
	return account
}

func fromAccount(account authkit.UserAccount) userRecord {
	record := userRecord{
		ID:       account.ID,
		Username: account.Username,
		External: account.External,
	}
	if account.Email != "" {
		email := account.Email
		record.Email = &email
	}
	if account.PasswordHash != "" {
		hash := account.PasswordHash
		record.PasswordHash = &hash
	}
	if account.Token != "" {
		token := account.Token
		record.Token = &token
	}
	return record
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique") || strings.Contains(message, "duplicate")
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("trip_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("trip_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("trip_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("trip_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
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
