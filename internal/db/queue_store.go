// Package db provides local durable storage for the Duet client core.
package db

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
	"github.com/duetlog/duet/backend/internal/models"
	"github.com/duetlog/duet/backend/internal/uuid"
)

// QueueStore persists the pending operation queue. Every failure here is a
// durability failure and is wrapped with ErrStorage so callers can surface
// it instead of absorbing it into a sync result.
type QueueStore struct {
	db    *DB
	cache stmtCache
}

// NewQueueStore creates a QueueStore backed by db.
func NewQueueStore(db *DB) *QueueStore {
	return &QueueStore{
		db:    db,
		cache: stmtCache{db: db.DB},
	}
}

// Close releases the store's prepared statements.
func (s *QueueStore) Close() error {
	return s.cache.close()
}

const queueColumns = `id, user_id, operation_type, payload, retry_count, status, last_error, created_at, updated_at`

// Insert appends a new operation to the queue, stamping its id and timestamps.
func (s *QueueStore) Insert(ctx context.Context, op *models.QueuedOperation) error {
	now := time.Now().Unix()
	op.ID = models.UUID(uuid.New())
	op.Status = models.OperationStatusPending
	op.RetryCount = 0
	op.CreatedAt = now
	op.UpdatedAt = now

	query := `
	INSERT INTO pending_operations (` + queueColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		op.ID, op.UserID, op.Type, string(op.Payload), op.RetryCount,
		op.Status, op.LastError, op.CreatedAt, op.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to insert queued operation", err)
	}
	return nil
}

// Get retrieves a queued operation by id.
func (s *QueueStore) Get(ctx context.Context, id models.UUID) (*models.QueuedOperation, error) {
	query := `SELECT ` + queueColumns + ` FROM pending_operations WHERE id = ?`
	stmt, err := s.cache.prepare(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare queue lookup", err)
	}

	op, err := scanOperation(stmt.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "queued operation not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read queued operation", err)
	}
	return op, nil
}

// ListPending returns all pending operations for a user in submission order.
// This is the drain snapshot: the queue is FIFO per user. created_at only has
// second resolution, so rowid breaks ties; SQLite assigns rowids in insert
// order, which keeps back-to-back enqueues within one second in order.
func (s *QueueStore) ListPending(ctx context.Context, userID string) ([]*models.QueuedOperation, error) {
	query := `
	SELECT ` + queueColumns + ` FROM pending_operations
	WHERE user_id = ? AND status = ?
	ORDER BY created_at, rowid
	`
	stmt, err := s.cache.prepare(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare pending list", err)
	}

	rows, err := stmt.QueryContext(ctx, userID, models.OperationStatusPending)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending operations", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

// ListDead returns dead-lettered operations for a user, newest first.
func (s *QueueStore) ListDead(ctx context.Context, userID string) ([]*models.QueuedOperation, error) {
	query := `
	SELECT ` + queueColumns + ` FROM pending_operations
	WHERE user_id = ? AND status = ?
	ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, models.OperationStatusDead)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list dead-lettered operations", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

// CountPending returns the number of pending operations for a user.
func (s *QueueStore) CountPending(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM pending_operations WHERE user_id = ? AND status = ?`
	stmt, err := s.cache.prepare(query)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare pending count", err)
	}

	var count int
	if err := stmt.QueryRowContext(ctx, userID, models.OperationStatusPending).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count pending operations", err)
	}
	return count, nil
}

// Delete removes an operation from the queue. Called only after a confirmed
// remote success or an explicit discard decision.
func (s *QueueStore) Delete(ctx context.Context, id models.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete queued operation", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, "queued operation not found")
	}
	return nil
}

// IncrementRetry bumps the retry count of a failed operation and records the
// failure description. Type and payload stay immutable.
func (s *QueueStore) IncrementRetry(ctx context.Context, id models.UUID, lastError string) error {
	query := `
	UPDATE pending_operations
	SET retry_count = retry_count + 1, last_error = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, lastError, time.Now().Unix(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to increment retry count", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, "queued operation not found")
	}
	return nil
}

// MarkDead moves an operation past its retry bound into the dead-letter
// state. Dead operations are retained for inspection, not retried.
func (s *QueueStore) MarkDead(ctx context.Context, id models.UUID, lastError string) error {
	query := `
	UPDATE pending_operations
	SET status = ?, last_error = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, models.OperationStatusDead, lastError, time.Now().Unix(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to dead-letter operation", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, "queued operation not found")
	}
	return nil
}

// PurgeDeadBefore removes dead-lettered operations last touched before cutoff.
func (s *QueueStore) PurgeDeadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE status = ? AND updated_at < ?`,
		models.OperationStatusDead, cutoff.Unix())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to purge dead-lettered operations", err)
	}
	return result.RowsAffected()
}

// scanner abstracts sql.Row / sql.Rows for scanOperation.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row scanner) (*models.QueuedOperation, error) {
	var op models.QueuedOperation
	var payload string
	err := row.Scan(&op.ID, &op.UserID, &op.Type, &payload, &op.RetryCount,
		&op.Status, &op.LastError, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, err
	}
	op.Payload = []byte(payload)
	return &op, nil
}

func collectOperations(rows *sql.Rows) ([]*models.QueuedOperation, error) {
	var ops []*models.QueuedOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan queued operation", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed while iterating queued operations", err)
	}
	return ops, nil
}
