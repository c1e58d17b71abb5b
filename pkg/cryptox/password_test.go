package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "cryptox")
	if err != nil {
		panic(err)
	}
	SetPepperPath(filepath.Join(dir, "pepper.key"))
	SetArgon2Params(Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16})

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "Password123"},
		{"symbols", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"unicode password", "пароль🔒密码"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"))
			require.Len(t, strings.Split(hash, "$"), 6)

			require.NoError(t, VerifyPassword(tt.password, hash))
			require.ErrorIs(t, VerifyPassword(tt.password+"x", hash), ErrPasswordMismatch)
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h1, err := HashPassword("samepassword")
	require.NoError(t, err)
	h2, err := HashPassword("samepassword")
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
	require.NoError(t, VerifyPassword("samepassword", h1))
	require.NoError(t, VerifyPassword("samepassword", h2))
}

func TestVerifyPassword_LegacyBcrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("Legacy123"), bcrypt.MinCost)
	require.NoError(t, err)

	// PHP writes $2y$, which is the same algorithm as $2a$.
	phpStyle := "$2y$" + strings.TrimPrefix(string(raw), "$2a$")

	for _, h := range []string{string(raw), phpStyle} {
		require.NoError(t, VerifyPassword("Legacy123", h))
		require.ErrorIs(t, VerifyPassword("legacy123", h), ErrPasswordMismatch)
		require.True(t, NeedsRehash(h))
	}
}

func TestVerifyPassword_InvalidHashFormat(t *testing.T) {
	tests := []struct {
		name        string
		invalidHash string
	}{
		{"empty hash", ""},
		{"plain text", "hunter2"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword("test-password", tt.invalidHash)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrPasswordMismatch)
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	current, err := HashPassword("Password123")
	require.NoError(t, err)
	require.False(t, NeedsRehash(current))

	stale := strings.Replace(current, "m=8192,t=1,p=1", "m=19456,t=2,p=1", 1)
	require.True(t, NeedsRehash(stale))
	require.True(t, NeedsRehash("garbage"))
}

func TestEqualizeTiming(t *testing.T) {
	// must not panic and must not depend on any stored user
	EqualizeTiming("whatever")
	EqualizeTiming("")
}
