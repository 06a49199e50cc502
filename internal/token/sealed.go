package token

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed token file layout: salt (16) || nonce (24) || ciphertext.
const (
	sealedSaltLen = 16
	sealedMagic   = "LOOMSEAL1"
)

// Argon2id parameters for the file key. Interactive-grade: the threat model
// is a stolen laptop, not an offline GPU farm against a server dump.
const (
	kdfMemoryKiB = 64 * 1024
	kdfTime      = 2
	kdfThreads   = 1
)

// ErrSealedCorrupt is returned when a sealed credential file cannot be
// decrypted (wrong passphrase or damaged file).
var ErrSealedCorrupt = errors.New("token: sealed credential unreadable")

// SealedFileStore encrypts the credential at rest.
//
// The key is derived from a passphrase with Argon2id (random per-write salt)
// and the credential is sealed with XChaCha20-Poly1305. Get with a wrong
// passphrase behaves like an absent credential; the session layer then
// treats the user as signed out rather than failing hard.
type SealedFileStore struct {
	inner      *FileStore
	passphrase []byte
}

// NewSealedFileStore constructs a sealed store at path.
func NewSealedFileStore(path, passphrase string) (*SealedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("token: empty passphrase")
	}
	inner, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return &SealedFileStore{inner: inner, passphrase: []byte(passphrase)}, nil
}

func (s *SealedFileStore) Get() (string, bool) {
	s.inner.mu.Lock()
	blob, err := os.ReadFile(s.inner.path)
	s.inner.mu.Unlock()
	if err != nil || len(blob) == 0 {
		return "", false
	}
	cred, err := s.open(blob)
	if err != nil {
		return "", false
	}
	return string(cred), true
}

func (s *SealedFileStore) Set(cred string) error {
	if cred == "" {
		return ErrEmptyCredential
	}
	blob, err := s.seal([]byte(cred))
	if err != nil {
		return err
	}
	s.inner.mu.Lock()
	defer s.inner.mu.Unlock()
	return writeFileAtomic(s.inner.path, blob)
}

func (s *SealedFileStore) Remove() error { return s.inner.Remove() }

func (s *SealedFileStore) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, sealedSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealedMagic)+len(salt)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, []byte(sealedMagic)), nil
}

func (s *SealedFileStore) open(blob []byte) ([]byte, error) {
	header := len(sealedMagic) + sealedSaltLen + chacha20poly1305.NonceSizeX
	if len(blob) < header || string(blob[:len(sealedMagic)]) != sealedMagic {
		return nil, ErrSealedCorrupt
	}
	salt := blob[len(sealedMagic) : len(sealedMagic)+sealedSaltLen]
	nonce := blob[len(sealedMagic)+sealedSaltLen : header]

	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, nonce, blob[header:], []byte(sealedMagic))
	if err != nil {
		return nil, ErrSealedCorrupt
	}
	return plain, nil
}

func (s *SealedFileStore) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, kdfTime, kdfMemoryKiB, kdfThreads, chacha20poly1305.KeySize)
	return chacha20poly1305.NewX(key)
}
