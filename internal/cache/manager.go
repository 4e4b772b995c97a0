// Package cache manages advisory local snapshots of remote entities so the
// app can render recent content while offline.
package cache

import (
	"context"
	"time"

	"github.com/duetlog/duet/backend/internal/db"
	"github.com/duetlog/duet/backend/internal/logging"
	"github.com/duetlog/duet/backend/internal/models"
)

const (
	// DefaultRetention is how long a snapshot stays readable after it was
	// last refreshed.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultListLimit bounds reads when the caller passes limit <= 0.
	DefaultListLimit = 50
)

// ManagerConfig configures the cache manager.
type ManagerConfig struct {
	// Retention is the eviction horizon; 0 means DefaultRetention.
	Retention time.Duration
}

// Manager caches remote snapshots and serves offline reads. Snapshots are
// advisory only; pending local mutations never live here.
type Manager struct {
	store     *db.CacheStore
	retention time.Duration
}

// NewManager creates a cache manager over the store.
func NewManager(store *db.CacheStore, cfg ManagerConfig) *Manager {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{store: store, retention: retention}
}

// CachePosts stores or refreshes snapshots of feed posts.
func (m *Manager) CachePosts(ctx context.Context, posts []*models.CachedPost) error {
	if err := m.store.UpsertPosts(ctx, posts); err != nil {
		return err
	}
	logging.Debug("cached posts", logging.Fields{"count": len(posts)})
	return nil
}

// CacheJournalEntries stores or refreshes journal entry snapshots for a
// connection.
func (m *Manager) CacheJournalEntries(ctx context.Context, connectionID string, entries []*models.CachedJournalEntry) error {
	if err := m.store.UpsertJournalEntries(ctx, connectionID, entries); err != nil {
		return err
	}
	logging.Debug("cached journal entries", logging.Fields{
		"connection_id": connectionID,
		"count":         len(entries),
	})
	return nil
}

// CacheMoodEntries stores or refreshes mood entry snapshots for a user.
func (m *Manager) CacheMoodEntries(ctx context.Context, userID string, entries []*models.CachedMoodEntry) error {
	if err := m.store.UpsertMoodEntries(ctx, userID, entries); err != nil {
		return err
	}
	logging.Debug("cached mood entries", logging.Fields{
		"user_id": userID,
		"count":   len(entries),
	})
	return nil
}

// CachedPosts returns cached posts newest-first. An empty cache is a normal
// result, not an error.
func (m *Manager) CachedPosts(ctx context.Context, limit int) ([]*models.CachedPost, error) {
	return m.store.ListPosts(ctx, normalizeLimit(limit))
}

// CachedJournalEntries returns cached entries for a connection newest-first.
func (m *Manager) CachedJournalEntries(ctx context.Context, connectionID string, limit int) ([]*models.CachedJournalEntry, error) {
	return m.store.ListJournalEntries(ctx, connectionID, normalizeLimit(limit))
}

// CachedMoodEntries returns cached mood entries for a user newest-first.
func (m *Manager) CachedMoodEntries(ctx context.Context, userID string, limit int) ([]*models.CachedMoodEntry, error) {
	return m.store.ListMoodEntries(ctx, userID, normalizeLimit(limit))
}

// InvalidateOldCache evicts every snapshot last cached before the retention
// horizon. Returns the number of evicted snapshots.
func (m *Manager) InvalidateOldCache(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-m.retention)
	removed, err := m.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.Info("evicted stale cache entries", logging.Fields{
			"removed": removed,
			"cutoff":  cutoff.Unix(),
		})
	}
	return removed, nil
}

// Clear drops every cached snapshot, for example on logout.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
