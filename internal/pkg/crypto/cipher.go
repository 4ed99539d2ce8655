// Package crypto implements password-based authenticated encryption for short
// secret strings (portal passwords, MFA seeds, vault snapshots).
//
// Every Encrypt call draws a fresh salt and IV, derives an AES-256 key with
// PBKDF2-HMAC-SHA256 and seals with AES-256-GCM (128-bit tag).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	apperrors "regportal.io/automation/internal/pkg/errors"
)

const (
	// MinIterations is the lowest PBKDF2 work factor the cipher accepts.
	MinIterations = 100_000

	SaltSize = 32
	IVSize   = 16
	KeySize  = 32 // AES-256
)

// Sealed is the hex-encoded output of Encrypt. None of the parts is secret on
// its own; salt and IV are stored next to the ciphertext.
type Sealed struct {
	Ciphertext string `json:"encrypted" yaml:"encrypted"`
	Salt       string `json:"salt" yaml:"salt"`
	IV         string `json:"iv" yaml:"iv"`
}

// Cipher seals and opens strings under a password.
type Cipher struct {
	iterations int
	random     io.Reader
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithIterations raises the PBKDF2 work factor. Values below MinIterations
// are rejected by NewCipher.
func WithIterations(n int) Option {
	return func(c *Cipher) { c.iterations = n }
}

// WithRandom replaces the entropy source (tests only).
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) { c.random = r }
}

// NewCipher creates a Cipher with MinIterations unless overridden.
func NewCipher(opts ...Option) (*Cipher, error) {
	c := &Cipher{
		iterations: MinIterations,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.iterations < MinIterations {
		return nil, fmt.Errorf("pbkdf2 iterations must be at least %d, got %d", MinIterations, c.iterations)
	}
	return c, nil
}

// Iterations returns the configured PBKDF2 work factor.
func (c *Cipher) Iterations() int {
	return c.iterations
}

// Encrypt seals plaintext under password with a fresh salt and IV.
func (c *Cipher) Encrypt(plaintext, password string) (*Sealed, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	gcm, err := c.aead(password, salt)
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), nil)
	return &Sealed{
		Ciphertext: hex.EncodeToString(ciphertext),
		Salt:       hex.EncodeToString(salt),
		IV:         hex.EncodeToString(iv),
	}, nil
}

// Decrypt opens a Sealed value. Any decode or authentication failure is
// reported as an integrity error; partial plaintext is never returned.
func (c *Cipher) Decrypt(s *Sealed, password string) (string, error) {
	if s == nil {
		return "", apperrors.Integrity(fmt.Errorf("nil sealed value"))
	}
	ciphertext, err := hex.DecodeString(s.Ciphertext)
	if err != nil {
		return "", apperrors.Integrity(fmt.Errorf("decode ciphertext: %w", err))
	}
	salt, err := hex.DecodeString(s.Salt)
	if err != nil {
		return "", apperrors.Integrity(fmt.Errorf("decode salt: %w", err))
	}
	iv, err := hex.DecodeString(s.IV)
	if err != nil {
		return "", apperrors.Integrity(fmt.Errorf("decode iv: %w", err))
	}
	if len(iv) != IVSize {
		return "", apperrors.Integrity(fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv)))
	}

	gcm, err := c.aead(password, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", apperrors.Integrity(err)
	}
	return string(plaintext), nil
}

func (c *Cipher) aead(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, c.iterations, KeySize, sha256.New)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// RandomToken returns n cryptographically random bytes, hex-encoded.
func (c *Cipher) RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.random, b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RandomID returns a random (version 4) UUID.
func RandomID() string {
	return uuid.NewString()
}

// SHA256 returns the hex digest of text. For fingerprints only, never for
// password storage.
func SHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
