// Package db provides local durable storage for the Duet client core.
package db

import (
	"context"
	"time"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
	"github.com/duetlog/duet/backend/internal/models"
)

// CacheStore persists advisory snapshots of remote entities for offline
// reads. Writes are destructive upserts keyed by the source entity id.
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a CacheStore backed by db.
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

// UpsertPosts replaces cached copies of the given posts in place.
func (s *CacheStore) UpsertPosts(ctx context.Context, posts []*models.CachedPost) error {
	if len(posts) == 0 {
		return nil
	}

	query := `
	INSERT INTO cached_posts (id, author_username, content, image_url, like_count, comment_count, created_at, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		author_username = excluded.author_username,
		content = excluded.content,
		image_url = excluded.image_url,
		like_count = excluded.like_count,
		comment_count = excluded.comment_count,
		created_at = excluded.created_at,
		cached_at = excluded.cached_at
	`
	now := time.Now().Unix()
	for _, post := range posts {
		post.CachedAt = now
		if _, err := s.db.ExecContext(ctx, query, post.ID, post.AuthorUsername, post.Content,
			post.ImageURL, post.LikeCount, post.CommentCount, post.CreatedAt, post.CachedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to cache post", err)
		}
	}
	return nil
}

// UpsertJournalEntries replaces cached journal entries for a connection.
func (s *CacheStore) UpsertJournalEntries(ctx context.Context, connectionID string, entries []*models.CachedJournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
	INSERT INTO cached_journal_entries (id, connection_id, author_username, title, content, created_at, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		connection_id = excluded.connection_id,
		author_username = excluded.author_username,
		title = excluded.title,
		content = excluded.content,
		created_at = excluded.created_at,
		cached_at = excluded.cached_at
	`
	now := time.Now().Unix()
	for _, entry := range entries {
		entry.ConnectionID = connectionID
		entry.CachedAt = now
		if _, err := s.db.ExecContext(ctx, query, entry.ID, entry.ConnectionID, entry.AuthorUsername,
			entry.Title, entry.Content, entry.CreatedAt, entry.CachedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to cache journal entry", err)
		}
	}
	return nil
}

// UpsertMoodEntries replaces cached mood entries for a user.
func (s *CacheStore) UpsertMoodEntries(ctx context.Context, userID string, entries []*models.CachedMoodEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
	INSERT INTO cached_mood_entries (id, user_id, mood, note, created_at, cached_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		mood = excluded.mood,
		note = excluded.note,
		created_at = excluded.created_at,
		cached_at = excluded.cached_at
	`
	now := time.Now().Unix()
	for _, entry := range entries {
		entry.UserID = userID
		entry.CachedAt = now
		if _, err := s.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Mood,
			entry.Note, entry.CreatedAt, entry.CachedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to cache mood entry", err)
		}
	}
	return nil
}

// ListPosts returns cached posts newest-first, bounded by limit.
func (s *CacheStore) ListPosts(ctx context.Context, limit int) ([]*models.CachedPost, error) {
	query := `
	SELECT id, author_username, content, image_url, like_count, comment_count, created_at, cached_at
	FROM cached_posts ORDER BY created_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached posts", err)
	}
	defer rows.Close()

	var posts []*models.CachedPost
	for rows.Next() {
		var p models.CachedPost
		if err := rows.Scan(&p.ID, &p.AuthorUsername, &p.Content, &p.ImageURL,
			&p.LikeCount, &p.CommentCount, &p.CreatedAt, &p.CachedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cached post", err)
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

// ListJournalEntries returns cached entries for a connection newest-first.
func (s *CacheStore) ListJournalEntries(ctx context.Context, connectionID string, limit int) ([]*models.CachedJournalEntry, error) {
	query := `
	SELECT id, connection_id, author_username, title, content, created_at, cached_at
	FROM cached_journal_entries WHERE connection_id = ? ORDER BY created_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached journal entries", err)
	}
	defer rows.Close()

	var entries []*models.CachedJournalEntry
	for rows.Next() {
		var e models.CachedJournalEntry
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.AuthorUsername, &e.Title,
			&e.Content, &e.CreatedAt, &e.CachedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cached journal entry", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ListMoodEntries returns cached mood entries for a user newest-first.
func (s *CacheStore) ListMoodEntries(ctx context.Context, userID string, limit int) ([]*models.CachedMoodEntry, error) {
	query := `
	SELECT id, user_id, mood, note, created_at, cached_at
	FROM cached_mood_entries WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached mood entries", err)
	}
	defer rows.Close()

	var entries []*models.CachedMoodEntry
	for rows.Next() {
		var e models.CachedMoodEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Mood, &e.Note, &e.CreatedAt, &e.CachedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cached mood entry", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes snapshots cached before cutoff across all three
// snapshot kinds. Returns the total number of rows removed.
func (s *CacheStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"cached_posts", "cached_journal_entries", "cached_mood_entries"} {
		result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE cached_at < ?`, cutoff.Unix())
		if err != nil {
			return total, apperrors.Wrap(apperrors.ErrStorage, "failed to evict old cache entries", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

// Clear removes every cached snapshot.
func (s *CacheStore) Clear(ctx context.Context) error {
	for _, table := range []string{"cached_posts", "cached_journal_entries", "cached_mood_entries"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to clear cache", err)
		}
	}
	return nil
}
