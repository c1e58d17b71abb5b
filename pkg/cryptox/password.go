package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrPasswordMismatch is returned when a password does not match its hash.
	ErrPasswordMismatch = errors.New("password does not match")
	// ErrUnknownHashFormat is returned for hashes that are neither argon2id nor bcrypt.
	ErrUnknownHashFormat = errors.New("unknown password hash format")
)

// Argon2Params are the cost parameters of new hashes. Existing hashes carry
// their own parameters and keep verifying after these change.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultArgon2Params targets roughly 100ms per hash on a commodity core.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	KeyLength:   32,
	SaltLength:  16,
}

var (
	paramsMu sync.RWMutex
	params   = DefaultArgon2Params
)

// SetArgon2Params replaces the parameters used by HashPassword. Tests use it
// to keep hashing cheap.
func SetArgon2Params(p Argon2Params) {
	paramsMu.Lock()
	defer paramsMu.Unlock()
	params = p
}

func currentParams() Argon2Params {
	paramsMu.RLock()
	defer paramsMu.RUnlock()
	return params
}

// HashPassword generates a PHC-format Argon2id hash string including salt and parameters.
func HashPassword(password string) (string, error) {
	pep, err := getPepper()
	if err != nil {
		return "", fmt.Errorf("load pepper: %w", err)
	}
	p := currentParams()

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password+pep), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks password against an argon2id PHC hash or a legacy
// bcrypt hash ($2a$, $2b$, $2y$). Legacy hashes were produced without the
// pepper.
func VerifyPassword(password, encodedHash string) error {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2(password, encodedHash)
	case isBcrypt(encodedHash):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	default:
		return ErrUnknownHashFormat
	}
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh
// HashPassword result after a successful login.
func NeedsRehash(encodedHash string) bool {
	if !strings.HasPrefix(encodedHash, "$argon2id$") {
		return true
	}
	ph, err := parseArgon2(encodedHash)
	if err != nil {
		return true
	}
	p := currentParams()
	return ph.memory != p.Memory || ph.iterations != p.Iterations || ph.parallelism != p.Parallelism
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// EqualizeTiming burns the same work as a real verification. Call it when the
// account does not exist so the response time does not reveal that.
func EqualizeTiming(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = HashPassword("dummy-password-for-timing")
	})
	if dummyHash != "" {
		_ = VerifyPassword(password, dummyHash)
	}
}

func isBcrypt(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}

type phcArgon2 struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// parseArgon2 splits $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func parseArgon2(encoded string) (phcArgon2, error) {
	var ph phcArgon2

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return ph, errors.New("invalid hash format: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return ph, errors.New("invalid hash format: not argon2id")
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return ph, errors.New("invalid hash format: wrong version")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &ph.memory, &ph.iterations, &ph.parallelism); err != nil {
		return ph, fmt.Errorf("invalid hash format: failed to parse parameters: %w", err)
	}

	var err error
	if ph.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return ph, fmt.Errorf("invalid hash format: failed to decode salt: %w", err)
	}
	if ph.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return ph, fmt.Errorf("invalid hash format: failed to decode hash: %w", err)
	}
	if len(ph.hash) == 0 {
		return ph, errors.New("invalid hash format: empty hash")
	}
	return ph, nil
}

func verifyArgon2(password, encoded string) error {
	ph, err := parseArgon2(encoded)
	if err != nil {
		return err
	}
	pep, err := getPepper()
	if err != nil {
		return fmt.Errorf("load pepper: %w", err)
	}

	computed := argon2.IDKey(
		[]byte(password+pep),
		ph.salt,
		ph.iterations,
		ph.memory,
		ph.parallelism,
		uint32(len(ph.hash)), // #nosec G115 -- decoded from a stored hash of bounded size
	)
	if subtle.ConstantTimeCompare(computed, ph.hash) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}
