package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/database"
	"github.com/isdelr/skycast-be/internal/models"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// AccountStore defines the persistence contract for accounts.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) (models.Account, error)
	FindByID(ctx context.Context, id string, opts ...ReadOption) (models.Account, error)
	FindByUsername(ctx context.Context, username string, opts ...ReadOption) (models.Account, error)
	FindByEmail(ctx context.Context, email string, opts ...ReadOption) (models.Account, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time, opts ...ReadOption) (models.Account, error)
	Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error)
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type readOptions struct {
	withPasswordHash bool
}

// ReadOption tunes a single store read.
type ReadOption func(*readOptions)

// WithPasswordHash includes the password hash in the returned account. Only the
// auth service uses it, for credential verification.
func WithPasswordHash() ReadOption {
	return func(o *readOptions) { o.withPasswordHash = true }
}

// SQLiteAccountStore implements AccountStore on top of the users table.
type SQLiteAccountStore struct {
	db *sql.DB
}

// NewAccountStore creates a new SQLiteAccountStore.
func NewAccountStore(db *sql.DB) *SQLiteAccountStore {
	return &SQLiteAccountStore{db: db}
}

const accountColumns = `id, username, email, password_hash, preferred_city, temperature_unit,
	notifications, reset_token_hash, reset_token_expiry, created_at`

// Create inserts a new account. Username and email uniqueness is enforced by the
// table's UNIQUE constraints so concurrent registrations cannot both succeed.
func (s *SQLiteAccountStore) Create(ctx context.Context, account models.Account) (models.Account, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, preferred_city, temperature_unit, notifications, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Username, account.Email, account.PasswordHash, nullableString(account.PreferredCity),
		string(account.Settings.TemperatureUnit), account.Settings.Notifications, database.ToMillis(account.CreatedAt),
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return models.Account{}, apperror.NewDuplicateKey(duplicateMessage(field), err)
		}
		return models.Account{}, apperror.NewInternal("Failed to create user", err)
	}
	return account.Sanitized(), nil
}

// FindByID retrieves a single account by its ID.
func (s *SQLiteAccountStore) FindByID(ctx context.Context, id string, opts ...ReadOption) (models.Account, error) {
	return s.findOne(ctx, "id = ?", []any{id}, opts)
}

// FindByUsername retrieves a single account by its username.
func (s *SQLiteAccountStore) FindByUsername(ctx context.Context, username string, opts ...ReadOption) (models.Account, error) {
	return s.findOne(ctx, "username = ?", []any{models.NormalizeUsername(username)}, opts)
}

// FindByEmail retrieves a single account by its email.
func (s *SQLiteAccountStore) FindByEmail(ctx context.Context, email string, opts ...ReadOption) (models.Account, error) {
	return s.findOne(ctx, "email = ?", []any{models.NormalizeEmail(email)}, opts)
}

// FindByResetToken retrieves the account holding tokenHash, provided the token
// has not expired at now. Expired tokens behave as if absent.
func (s *SQLiteAccountStore) FindByResetToken(ctx context.Context, tokenHash string, now time.Time, opts ...ReadOption) (models.Account, error) {
	return s.findOne(ctx, "reset_token_hash = ? AND reset_token_expiry > ?", []any{tokenHash, database.ToMillis(now)}, opts)
}

// Update applies a merge-patch and returns the updated account.
func (s *SQLiteAccountStore) Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	if patch.Empty() {
		return s.FindByID(ctx, id)
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	switch {
	case patch.ClearCity:
		set("preferred_city", nil)
	case patch.PreferredCity != nil:
		set("preferred_city", *patch.PreferredCity)
	}
	if patch.TemperatureUnit != nil {
		set("temperature_unit", string(*patch.TemperatureUnit))
	}
	if patch.Notifications != nil {
		set("notifications", *patch.Notifications)
	}
	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	switch {
	case patch.ClearResetToken:
		set("reset_token_hash", nil)
		set("reset_token_expiry", nil)
	default:
		if patch.ResetTokenHash != nil {
			set("reset_token_hash", *patch.ResetTokenHash)
		}
		if patch.ResetTokenExpiry != nil {
			set("reset_token_expiry", database.ToMillis(*patch.ResetTokenExpiry))
		}
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return models.Account{}, apperror.NewInternal("Failed to update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Account{}, apperror.NewInternal("Failed to update user", err)
	}
	if n == 0 {
		return models.Account{}, apperror.NewNotFound("User not found")
	}
	return s.FindByID(ctx, id)
}

// DeleteExpiredResetTokens clears reset token fields whose expiry has passed.
func (s *SQLiteAccountStore) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET reset_token_hash = NULL, reset_token_expiry = NULL
		WHERE reset_token_expiry IS NOT NULL AND reset_token_expiry <= ?`, database.ToMillis(now))
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteAccountStore) findOne(ctx context.Context, where string, args []any, opts []ReadOption) (models.Account, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM users WHERE "+where, args...)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, apperror.NewNotFound("User not found")
		}
		return models.Account{}, apperror.NewInternal("Failed to load user", err)
	}
	if !o.withPasswordHash {
		account.PasswordHash = ""
	}
	return account, nil
}

// scanAccount is a helper function to scan a single row into an Account struct.
func scanAccount(scanner interface{ Scan(...any) error }) (models.Account, error) {
	var (
		account     models.Account
		city        sql.NullString
		unit        string
		resetHash   sql.NullString
		resetExpiry sql.NullInt64
		createdAt   int64
	)
	err := scanner.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&city,
		&unit,
		&account.Settings.Notifications,
		&resetHash,
		&resetExpiry,
		&createdAt,
	)
	if err != nil {
		return models.Account{}, err
	}

	account.Settings.TemperatureUnit = models.TemperatureUnit(unit)
	account.CreatedAt = database.FromMillis(createdAt)
	if city.Valid {
		account.PreferredCity = &city.String
	}
	if resetHash.Valid {
		account.ResetTokenHash = &resetHash.String
	}
	if resetExpiry.Valid {
		expiry := database.FromMillis(resetExpiry.Int64)
		account.ResetTokenExpiry = &expiry
	}
	return account, nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and, if so,
// which users column triggered it.
func uniqueViolation(err error) (string, bool) {
	var sqliteErr *msqlite.Error
	isUnique := false
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			isUnique = true
		}
	}
	message := strings.ToLower(err.Error())
	if !isUnique && !strings.Contains(message, "unique constraint failed") {
		return "", false
	}
	switch {
	case strings.Contains(message, "users.username"):
		return "username", true
	case strings.Contains(message, "users.email"):
		return "email", true
	default:
		return "", true
	}
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func duplicateMessage(field string) string {
	switch field {
	case "username":
		return "Username already exists"
	case "email":
		return "Email already exists"
	default:
		return "User already exists"
	}
}
