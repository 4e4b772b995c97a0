package crypto

import (
	"crypto/rand"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
)

const (
	keyFileName   = "duet.key"
	tokenFileName = "session.token"
)

// TokenStore persists the session token encrypted under a per-machine key
// kept next to it with 0600 permissions. Not a substitute for an OS
// keychain, but keeps the token out of plain text on disk.
type TokenStore struct {
	dir string
}

// NewTokenStore creates a TokenStore rooted at dir.
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

// Save encrypts and writes the token, creating the machine key on first use.
func (s *TokenStore) Save(token string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to create token directory", err)
	}

	key, err := s.machineKey()
	if err != nil {
		return err
	}

	encrypted, err := Encrypt([]byte(token), key)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encrypt session token", err)
	}

	if err := os.WriteFile(s.tokenPath(), []byte(encrypted), 0o600); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write session token", err)
	}
	return nil
}

// Load reads and decrypts the stored token. A missing token is
// ErrNotFound.
func (s *TokenStore) Load() (string, error) {
	encrypted, err := os.ReadFile(s.tokenPath())
	if os.IsNotExist(err) {
		return "", apperrors.New(apperrors.ErrNotFound, "no stored session token")
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to read session token", err)
	}

	key, err := s.machineKey()
	if err != nil {
		return "", err
	}

	token, err := Decrypt(string(encrypted), key)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to decrypt session token", err)
	}
	return string(token), nil
}

// Delete removes the stored token. Deleting an absent token is fine.
func (s *TokenStore) Delete() error {
	err := os.Remove(s.tokenPath())
	if err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete session token", err)
	}
	return nil
}

func (s *TokenStore) tokenPath() string {
	return filepath.Join(s.dir, tokenFileName)
}

// machineKey loads the local key, generating it on first use.
func (s *TokenStore) machineKey() ([]byte, error) {
	path := filepath.Join(s.dir, keyFileName)

	key, err := os.ReadFile(path)
	if err == nil && len(key) == 32 {
		return key, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read machine key", err)
	}

	key = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to generate machine key", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to write machine key", err)
	}
	return key, nil
}
