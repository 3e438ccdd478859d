package keys

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrWrongPassword is returned when a sealed secret fails to open.
var ErrWrongPassword = errors.New("wrong password or corrupted key file")

const saltSize = 32

// KDF holds Argon2id cost parameters.
type KDF struct {
	Memory      uint32 `json:"memory"` // KiB
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKDF is used for new key files.
func DefaultKDF() KDF {
	return KDF{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

// Sealed is an encrypted secret with everything needed to open it.
type Sealed struct {
	KDF        KDF    `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Seal encrypts secret under password with XChaCha20-Poly1305. ad is
// authenticated but not encrypted.
func Seal(secret, password, ad []byte, kdf KDF) (*Sealed, error) {
	s := &Sealed{KDF: kdf, Salt: make([]byte, saltSize), Nonce: make([]byte, chacha20poly1305.NonceSizeX)}
	if _, err := rand.Read(s.Salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	if _, err := rand.Read(s.Nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	key := s.key(password)
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	s.Ciphertext = aead.Seal(nil, s.Nonce, secret, ad)
	return s, nil
}

// Open decrypts s with password.
func (s *Sealed) Open(password, ad []byte) ([]byte, error) {
	if len(s.Salt) != saltSize || len(s.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: bad header", ErrWrongPassword)
	}
	if s.KDF.Iterations == 0 || s.KDF.Parallelism == 0 {
		return nil, fmt.Errorf("%w: bad kdf params", ErrWrongPassword)
	}
	key := s.key(password)
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	out, err := aead.Open(nil, s.Nonce, s.Ciphertext, ad)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return out, nil
}

func (s *Sealed) key(password []byte) []byte {
	return argon2.IDKey(password, s.Salt, s.KDF.Iterations, s.KDF.Memory, s.KDF.Parallelism, chacha20poly1305.KeySize)
}
