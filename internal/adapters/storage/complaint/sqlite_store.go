package complaint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"civicreport/internal/adapters/storage"
	outboxStore "civicreport/internal/adapters/storage/outbox"
	domain "civicreport/internal/domain/complaint"
	domainOutbox "civicreport/internal/domain/outbox"
)

const selectColumns = "SELECT id, account_id, location, description, image_path, status, created_at, updated_at FROM complaint"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new complaint store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts a complaint and returns it with its assigned ID.
// PRE: value has been validated; value.AccountID references an existing account
// POST: Row inserted
func (s *SQLiteStore) Create(ctx context.Context, value domain.Complaint) (domain.Complaint, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO complaint (account_id, location, description, image_path, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		value.AccountID, value.Location, value.Description, value.ImagePath, value.Status,
		storage.FormatTime(value.CreatedAt), storage.FormatTime(value.UpdatedAt))
	if err != nil {
		return domain.Complaint{}, fmt.Errorf("insert complaint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Complaint{}, fmt.Errorf("read complaint id: %w", err)
	}
	value.ID = id
	return value, nil
}

// GetByID retrieves a Complaint by its ID.
// POST: Returns the entity or an error wrapping domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (domain.Complaint, error) {
	entity, err := scanComplaint(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Complaint{}, fmt.Errorf("complaint %d: %w", id, domain.ErrNotFound)
	}
	return entity, err
}

// ListByAccount returns the account's complaints in creation order.
func (s *SQLiteStore) ListByAccount(ctx context.Context, accountID int64) ([]domain.Complaint, error) {
	return s.list(ctx, selectColumns+" WHERE account_id = ? ORDER BY id ASC", accountID)
}

// ListAll returns every complaint in creation order.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]domain.Complaint, error) {
	return s.list(ctx, selectColumns+" ORDER BY id ASC")
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]domain.Complaint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update writes the editable fields of an existing complaint.
// PRE: caller has checked ownership; value has been validated
// POST: location, description, image_path and updated_at replaced; status untouched
func (s *SQLiteStore) Update(ctx context.Context, value domain.Complaint) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE complaint SET location = ?, description = ?, image_path = ?, updated_at = ? WHERE id = ?",
		value.Location, value.Description, value.ImagePath, storage.FormatTime(value.UpdatedAt), value.ID)
	if err != nil {
		return fmt.Errorf("update complaint %d: %w", value.ID, err)
	}
	return requireRow(res, value.ID)
}

// SetStatus updates the status and optionally enqueues a notification atomically.
// PRE: status has been normalized
// POST: Either both the status change and the outbox entry are committed or neither is
func (s *SQLiteStore) SetStatus(ctx context.Context, id int64, status string, now time.Time, notification *domainOutbox.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE complaint SET status = ?, updated_at = ? WHERE id = ?",
		status, storage.FormatTime(now), id)
	if err != nil {
		return fmt.Errorf("set status on complaint %d: %w", id, err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	if notification != nil {
		if err := outboxStore.Insert(ctx, tx, *notification); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a complaint row. The stored image is the caller's concern.
// POST: Row removed, or an error wrapping domain.ErrNotFound
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM complaint WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete complaint %d: %w", id, err)
	}
	return requireRow(res, id)
}

// CountByStatus returns the number of complaints per status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM complaint GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("complaint %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// scanComplaint extracts a Complaint from a row scanner function.
func scanComplaint(scan func(dest ...any) error) (domain.Complaint, error) {
	var c domain.Complaint
	var createdAt, updatedAt string
	if err := scan(&c.ID, &c.AccountID, &c.Location, &c.Description, &c.ImagePath, &c.Status, &createdAt, &updatedAt); err != nil {
		return domain.Complaint{}, err
	}
	c.CreatedAt, _ = storage.ParseTime(createdAt)
	c.UpdatedAt, _ = storage.ParseTime(updatedAt)
	return c, nil
}
