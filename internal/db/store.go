// Package db provides local durable storage for the Duet client core.
package db

import (
	"database/sql"
	"fmt"
	"sync"
)

// stmtCache caches prepared statements keyed by query text so hot queries
// skip repeated SQL parsing. Safe for concurrent use.
type stmtCache struct {
	db    *sql.DB
	stmts sync.Map // map[string]*sql.Stmt
}

// prepare gets or creates a prepared statement from the cache.
func (c *stmtCache) prepare(query string) (*sql.Stmt, error) {
	if stmt, ok := c.stmts.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := c.stmts.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// close closes all cached prepared statements.
func (c *stmtCache) close() error {
	var firstErr error
	c.stmts.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}
