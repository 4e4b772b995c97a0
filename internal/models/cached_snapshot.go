// Package models provides data model definitions for the Duet client core.
package models

import "time"

// Cached snapshots are advisory copies of remote entities for offline reads.
// They are never the system of record; anything read from them may be stale,
// and entries past the retention horizon are evictable at any time.

// CachedPost is a locally cached feed post snapshot.
type CachedPost struct {
	ID             UUID   `db:"id" json:"id"`
	AuthorUsername string `db:"author_username" json:"author_username"`
	Content        string `db:"content" json:"content"`
	ImageURL       string `db:"image_url" json:"image_url,omitempty"`
	LikeCount      int    `db:"like_count" json:"like_count"`
	CommentCount   int    `db:"comment_count" json:"comment_count"`
	CreatedAt      int64  `db:"created_at" json:"created_at"`
	CachedAt       int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedPost.
func (CachedPost) TableName() string {
	return "cached_posts"
}

// CachedJournalEntry is a locally cached journal entry snapshot, scoped to
// the couple connection it belongs to.
type CachedJournalEntry struct {
	ID             UUID   `db:"id" json:"id"`
	ConnectionID   string `db:"connection_id" json:"connection_id"`
	AuthorUsername string `db:"author_username" json:"author_username"`
	Title          string `db:"title" json:"title"`
	Content        string `db:"content" json:"content"`
	CreatedAt      int64  `db:"created_at" json:"created_at"`
	CachedAt       int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedJournalEntry.
func (CachedJournalEntry) TableName() string {
	return "cached_journal_entries"
}

// CachedMoodEntry is a locally cached mood entry snapshot, scoped to its
// owning user.
type CachedMoodEntry struct {
	ID        UUID   `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"user_id"`
	Mood      string `db:"mood" json:"mood"`
	Note      string `db:"note" json:"note,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	CachedAt  int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedMoodEntry.
func (CachedMoodEntry) TableName() string {
	return "cached_mood_entries"
}

// CachedAtTime returns CachedAt as time.Time.
func (p *CachedPost) CachedAtTime() time.Time {
	return time.Unix(p.CachedAt, 0)
}
