package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrSealKeyEmpty   = errors.New("cryptox: seal key is empty")
	ErrSealedTooShort = errors.New("cryptox: sealed data too short")
)

// LoadSealKey reads key material from file and derives a 32-byte key from
// it, so any passphrase or random blob can serve as the key file.
func LoadSealKey(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read seal key: %w", err)
	}
	return DeriveSealKey(data)
}

func DeriveSealKey(material []byte) ([]byte, error) {
	if len(material) == 0 {
		return nil, ErrSealKeyEmpty
	}
	sum := sha256.Sum256(material)
	return sum[:], nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305. The output is
// [24-byte nonce][ciphertext][16-byte tag].
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Tampered data or a wrong key fails authentication.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrSealedTooShort
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}
