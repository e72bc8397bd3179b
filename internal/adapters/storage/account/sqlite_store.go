package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"civicreport/internal/adapters/storage"
	domain "civicreport/internal/domain/account"
)

const selectColumns = "SELECT id, username, email, password_hash, role, created_at FROM account"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new account store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Account by its ID.
// POST: Returns the entity or an error wrapping domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	return s.getOne(ctx, selectColumns+" WHERE id = ?", id)
}

// GetByUsername retrieves an Account by exact username.
// PRE: username is non-empty
func (s *SQLiteStore) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	return s.getOne(ctx, selectColumns+" WHERE username = ?", username)
}

// GetByEmail retrieves an Account by exact email.
// PRE: email is non-empty
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return s.getOne(ctx, selectColumns+" WHERE email = ?", email)
}

func (s *SQLiteStore) getOne(ctx context.Context, query string, arg any) (domain.Account, error) {
	entity, err := scanAccount(s.db.QueryRowContext(ctx, query, arg).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account %v: %w", arg, domain.ErrNotFound)
	}
	return entity, err
}

// Create inserts a new Account and returns it with its assigned ID.
// PRE: value has been validated and carries a password hash
// POST: Row inserted; a username or email collision returns the matching duplicate error
func (s *SQLiteStore) Create(ctx context.Context, value domain.Account) (domain.Account, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO account (username, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		value.Username, value.Email, value.PasswordHash, value.Role, storage.FormatTime(value.CreatedAt))
	if err != nil {
		return domain.Account{}, mapConstraintError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Account{}, fmt.Errorf("read account id: %w", err)
	}
	value.ID = id
	return value, nil
}

// CountByRole returns how many accounts hold the role.
func (s *SQLiteStore) CountByRole(ctx context.Context, role string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM account WHERE role = ?", role).Scan(&count)
	return count, err
}

// mapConstraintError turns SQLite UNIQUE violations into domain errors.
func mapConstraintError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: account.username"):
		return domain.ErrDuplicateUsername
	case strings.Contains(msg, "UNIQUE constraint failed: account.email"):
		return domain.ErrDuplicateEmail
	}
	return fmt.Errorf("insert account: %w", err)
}

// scanAccount extracts an Account from a row scanner function.
func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var entity domain.Account
	var createdAt string
	if err := scan(&entity.ID, &entity.Username, &entity.Email, &entity.PasswordHash, &entity.Role, &createdAt); err != nil {
		return domain.Account{}, err
	}
	entity.CreatedAt, _ = storage.ParseTime(createdAt)
	return entity, nil
}
