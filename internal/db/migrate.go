// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
)

// Migration represents an applied database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationScript pairs a schema version with its SQL. Scripts are embedded
// in the binary so the client never depends on a migrations directory.
type migrationScript struct {
	Version     int
	Description string
	SQL         string
}

// migrations lists every schema migration in order. Append only; never edit
// an entry once shipped, the checksum check will reject it.
var migrations = []migrationScript{
	{
		Version:     1,
		Description: "pending operations queue",
		SQL: `
		CREATE TABLE IF NOT EXISTS pending_operations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			operation_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pending_operations_user_created
			ON pending_operations(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_pending_operations_status
			ON pending_operations(status);
		`,
	},
	{
		Version:     2,
		Description: "cached snapshots",
		SQL: `
		CREATE TABLE IF NOT EXISTS cached_posts (
			id TEXT PRIMARY KEY,
			author_username TEXT NOT NULL,
			content TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			like_count INTEGER NOT NULL DEFAULT 0,
			comment_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			cached_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cached_journal_entries (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL,
			author_username TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			cached_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cached_mood_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mood TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			cached_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cached_posts_created ON cached_posts(created_at);
		CREATE INDEX IF NOT EXISTS idx_cached_journal_conn ON cached_journal_entries(connection_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_cached_mood_user ON cached_mood_entries(user_id, created_at);
		`,
	},
}

// Migrator applies embedded schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// AppliedMigrations returns all applied migrations in version order.
func (m *Migrator) AppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations. Already-applied versions are verified
// against their recorded checksum and skipped.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations table", err)
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read applied migrations", err)
	}
	appliedByVersion := make(map[int]Migration, len(applied))
	for _, mig := range applied {
		appliedByVersion[mig.Version] = mig
	}

	for _, script := range migrations {
		checksum := checksumSQL(script.SQL)

		if prev, ok := appliedByVersion[script.Version]; ok {
			if prev.Checksum != checksum {
				return apperrors.New(apperrors.ErrMigration,
					fmt.Sprintf("migration %d checksum mismatch: schema history was edited", script.Version))
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "failed to begin migration transaction", err)
		}

		if _, err := tx.Exec(script.SQL); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("migration %d (%s) failed", script.Version, script.Description), err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			script.Version, time.Now().Unix(), script.Description, checksum,
		); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to record migration %d", script.Version), err)
		}

		if err := tx.Commit(); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to commit migration %d", script.Version), err)
		}
	}

	return nil
}

// checksumSQL returns the hex-encoded SHA-256 of a migration script.
func checksumSQL(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
