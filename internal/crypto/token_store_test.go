package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
)

// TestTokenStoreRoundTrip verifies save then load returns the token.
func TestTokenStoreRoundTrip(t *testing.T) {
	store := NewTokenStore(t.TempDir())

	if err := store.Save("my-session-token"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if token != "my-session-token" {
		t.Errorf("unexpected token: %s", token)
	}
}

// TestTokenStoredEncrypted verifies the token never lands on disk in plain
// text.
func TestTokenStoredEncrypted(t *testing.T) {
	dir := t.TempDir()
	store := NewTokenStore(dir)

	if err := store.Save("plaintext-secret"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, tokenFileName))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "plaintext-secret") {
		t.Error("token stored in plain text")
	}
}

// TestLoadMissingToken verifies a missing token is reported as not found.
func TestLoadMissingToken(t *testing.T) {
	store := NewTokenStore(t.TempDir())

	_, err := store.Load()
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestDeleteIdempotent verifies deleting twice is fine and the token is
// gone afterwards.
func TestDeleteIdempotent(t *testing.T) {
	store := NewTokenStore(t.TempDir())

	if err := store.Save("token"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}

	if _, err := store.Load(); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestSaveOverwrites verifies a new login replaces the stored token.
func TestSaveOverwrites(t *testing.T) {
	store := NewTokenStore(t.TempDir())

	if err := store.Save("old"); err != nil {
		t.Fatal(err)
	}
	if err := store.Save("new"); err != nil {
		t.Fatal(err)
	}

	token, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if token != "new" {
		t.Errorf("expected new token, got %s", token)
	}
}
