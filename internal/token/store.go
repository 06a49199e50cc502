// Package token persists the bearer access credential across process
// restarts. Exactly one credential is live at a time; absence means
// unauthenticated. Expiry is never tracked here — it is discovered
// reactively through 401 responses.
package token

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the credential cache contract: one mutable slot.
type Store interface {
	// Get returns the stored credential, or ok=false when absent.
	Get() (cred string, ok bool)
	// Set replaces the stored credential.
	Set(cred string) error
	// Remove clears the stored credential (idempotent).
	Remove() error
}

// ErrEmptyCredential is returned by Set for a blank credential.
var ErrEmptyCredential = errors.New("token: empty credential")

// DefaultPath resolves the per-user credential file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "loom", "access_token"), nil
}

// FileStore persists the credential as a 0600 flat file.
//
// Writes go through a temp file + rename so a crash mid-write never leaves
// a truncated credential behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore constructs a FileStore at path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("token: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	cred := strings.TrimSpace(string(b))
	if cred == "" {
		return "", false
	}
	return cred, true
}

func (s *FileStore) Set(cred string) error {
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return ErrEmptyCredential
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, []byte(cred))
}

func (s *FileStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// MemoryStore is an in-process Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu   sync.Mutex
	cred string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == "" {
		return "", false
	}
	return s.cred, true
}

func (s *MemoryStore) Set(cred string) error {
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return ErrEmptyCredential
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	return nil
}

func (s *MemoryStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = ""
	return nil
}
