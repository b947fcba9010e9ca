package localstate

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Key derivation parameters (argon2id)
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	saltSize   = 16
)

var (
	ErrEmptyPassphrase = errors.New("localstate: passphrase is required")
	ErrDecrypt         = errors.New("localstate: secret cannot be decrypted with this passphrase")
	ErrShortCiphertext = errors.New("localstate: ciphertext is too short")
)

// SecretBox encrypts facility secrets at rest with XChaCha20-Poly1305 under
// a key derived from the user's passphrase.
type SecretBox struct {
	key []byte
}

// NewSecretBox derives the key from passphrase and salt
func NewSecretBox(passphrase string, salt []byte) (*SecretBox, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("localstate: salt must be at least %d bytes", saltSize)
	}
	key := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	return &SecretBox{key: key}, nil
}

// NewSalt returns a random KDF salt
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Seal encrypts plaintext bound to aad. The output is nonce || ciphertext.
func (b *SecretBox) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts a value produced by Seal with the same aad
func (b *SecretBox) Open(sealed, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrShortCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
