// Package db tests for the cached snapshot store.
package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duetlog/duet/backend/internal/models"
)

func TestCacheUpsertPostsReplacesInPlace(t *testing.T) {
	store := NewCacheStore(newTestDB(t))
	ctx := context.Background()

	post := &models.CachedPost{
		ID:             "post-1",
		AuthorUsername: "amelie",
		Content:        "first version",
		LikeCount:      1,
		CreatedAt:      time.Now().Unix(),
	}
	require.NoError(t, store.UpsertPosts(ctx, []*models.CachedPost{post}))

	post.Content = "edited version"
	post.LikeCount = 5
	require.NoError(t, store.UpsertPosts(ctx, []*models.CachedPost{post}))

	posts, err := store.ListPosts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "edited version", posts[0].Content)
	require.Equal(t, 5, posts[0].LikeCount)
}

func TestCacheListPostsNewestFirstBounded(t *testing.T) {
	store := NewCacheStore(newTestDB(t))
	ctx := context.Background()

	base := time.Now().Unix()
	var batch []*models.CachedPost
	for i := 0; i < 5; i++ {
		batch = append(batch, &models.CachedPost{
			ID:             models.UUID(fmt.Sprintf("post-%d", i)),
			AuthorUsername: "amelie",
			Content:        fmt.Sprintf("post %d", i),
			CreatedAt:      base + int64(i),
		})
	}
	require.NoError(t, store.UpsertPosts(ctx, batch))

	posts, err := store.ListPosts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, models.UUID("post-4"), posts[0].ID)
	require.Equal(t, models.UUID("post-3"), posts[1].ID)
	require.Equal(t, models.UUID("post-2"), posts[2].ID)
}

func TestCacheListEmptySucceeds(t *testing.T) {
	store := NewCacheStore(newTestDB(t))
	ctx := context.Background()

	posts, err := store.ListPosts(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, posts)

	entries, err := store.ListJournalEntries(ctx, "conn-1", 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	moods, err := store.ListMoodEntries(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Empty(t, moods)
}

func TestCacheJournalEntriesScopedToConnection(t *testing.T) {
	store := NewCacheStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.UpsertJournalEntries(ctx, "conn-1", []*models.CachedJournalEntry{
		{ID: "entry-1", AuthorUsername: "amelie", Title: "ours", CreatedAt: time.Now().Unix()},
	}))
	require.NoError(t, store.UpsertJournalEntries(ctx, "conn-2", []*models.CachedJournalEntry{
		{ID: "entry-2", AuthorUsername: "ben", Title: "theirs", CreatedAt: time.Now().Unix()},
	}))

	entries, err := store.ListJournalEntries(ctx, "conn-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "conn-1", entries[0].ConnectionID)
}

func TestCacheMoodEntriesScopedToUser(t *testing.T) {
	store := NewCacheStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.UpsertMoodEntries(ctx, "user-1", []*models.CachedMoodEntry{
		{ID: "mood-1", Mood: "happy", CreatedAt: time.Now().Unix()},
	}))
	require.NoError(t, store.UpsertMoodEntries(ctx, "user-2", []*models.CachedMoodEntry{
		{ID: "mood-2", Mood: "tired", CreatedAt: time.Now().Unix()},
	}))

	moods, err := store.ListMoodEntries(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, moods, 1)
	require.Equal(t, "happy", moods[0].Mood)
}

// TestCacheDeleteOlderThanStraddlesHorizon pins eviction to the retention
// boundary: one second inside the horizon is retained, one second past it
// is removed.
func TestCacheDeleteOlderThanStraddlesHorizon(t *testing.T) {
	database := newTestDB(t)
	store := NewCacheStore(database)
	ctx := context.Background()

	horizon := time.Now().Add(-7 * 24 * time.Hour)

	require.NoError(t, store.UpsertPosts(ctx, []*models.CachedPost{
		{ID: "post-old", AuthorUsername: "amelie", Content: "old", CreatedAt: 1},
		{ID: "post-new", AuthorUsername: "amelie", Content: "new", CreatedAt: 2},
	}))
	require.NoError(t, store.UpsertJournalEntries(ctx, "conn-1", []*models.CachedJournalEntry{
		{ID: "entry-old", AuthorUsername: "amelie", Title: "old", CreatedAt: 1},
	}))
	require.NoError(t, store.UpsertMoodEntries(ctx, "user-1", []*models.CachedMoodEntry{
		{ID: "mood-old", Mood: "calm", CreatedAt: 1},
	}))

	// Pin cached_at to exactly one second either side of the horizon.
	stale := horizon.Add(-time.Second).Unix()
	fresh := horizon.Add(time.Second).Unix()
	for _, stmt := range []struct {
		query string
		args  []interface{}
	}{
		{`UPDATE cached_posts SET cached_at = ? WHERE id = 'post-old'`, []interface{}{stale}},
		{`UPDATE cached_posts SET cached_at = ? WHERE id = 'post-new'`, []interface{}{fresh}},
		{`UPDATE cached_journal_entries SET cached_at = ? WHERE id = 'entry-old'`, []interface{}{stale}},
		{`UPDATE cached_mood_entries SET cached_at = ? WHERE id = 'mood-old'`, []interface{}{stale}},
	} {
		_, err := database.Exec(stmt.query, stmt.args...)
		require.NoError(t, err)
	}

	removed, err := store.DeleteOlderThan(ctx, horizon)
	require.NoError(t, err)
	require.EqualValues(t, 3, removed)

	posts, err := store.ListPosts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, models.UUID("post-new"), posts[0].ID)
}

func TestCacheClear(t *testing.T) {
	store := NewCacheStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.UpsertPosts(ctx, []*models.CachedPost{
		{ID: "post-1", AuthorUsername: "amelie", Content: "hi", CreatedAt: time.Now().Unix()},
	}))

	require.NoError(t, store.Clear(ctx))

	posts, err := store.ListPosts(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, posts)
}
