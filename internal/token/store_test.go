package token

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access_token")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if _, ok := s.Get(); ok {
		t.Fatalf("expected absent credential before Set")
	}

	if err := s.Set("T1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get()
	if !ok || got != "T1" {
		t.Fatalf("Get()=%q,%v want T1,true", got, ok)
	}

	// Second reader sees the persisted value (survives "restart").
	s2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got, ok = s2.Get()
	if !ok || got != "T1" {
		t.Fatalf("reopened Get()=%q,%v want T1,true", got, ok)
	}

	if err := s.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Get(); ok {
		t.Fatalf("expected absent credential after Remove")
	}
	// Remove is idempotent.
	if err := s.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestFileStore_RejectsEmptyCredential(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(filepath.Join(t.TempDir(), "access_token"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set("   "); err != ErrEmptyCredential {
		t.Fatalf("Set blank: err=%v want ErrEmptyCredential", err)
	}
}

func TestFileStore_Permissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access_token")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set("secret"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("perm=%v want 0600", fi.Mode().Perm())
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if _, ok := s.Get(); ok {
		t.Fatalf("expected empty store")
	}
	if err := s.Set("T2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok := s.Get(); !ok || got != "T2" {
		t.Fatalf("Get()=%q,%v want T2,true", got, ok)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Get(); ok {
		t.Fatalf("expected empty after Remove")
	}
}

func TestSealedFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access_token")
	s, err := NewSealedFileStore(path, "correct horse")
	if err != nil {
		t.Fatalf("NewSealedFileStore: %v", err)
	}

	if err := s.Set("T1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// On-disk bytes never contain the plaintext credential.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) == "T1" || len(raw) <= len(sealedMagic)+sealedSaltLen {
		t.Fatalf("credential not sealed on disk")
	}

	got, ok := s.Get()
	if !ok || got != "T1" {
		t.Fatalf("Get()=%q,%v want T1,true", got, ok)
	}
}

func TestSealedFileStore_WrongPassphraseReadsAsAbsent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access_token")
	s, err := NewSealedFileStore(path, "right")
	if err != nil {
		t.Fatalf("NewSealedFileStore: %v", err)
	}
	if err := s.Set("T1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	wrong, err := NewSealedFileStore(path, "wrong")
	if err != nil {
		t.Fatalf("NewSealedFileStore: %v", err)
	}
	if _, ok := wrong.Get(); ok {
		t.Fatalf("wrong passphrase must read as absent")
	}
}
