package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := cryptox.DeriveSealKey([]byte("operator passphrase"))
	require.NoError(t, err)
	require.Len(t, key, 32)

	plain := []byte(`["cookie-one","cookie-two"]`)

	a, err := cryptox.Seal(key, plain)
	require.NoError(t, err)
	b, err := cryptox.Seal(key, plain)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "nonces must differ")
	require.NotContains(t, string(a), "cookie-one")

	got, err := cryptox.Open(key, a)
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestOpen_Rejects(t *testing.T) {
	key, err := cryptox.DeriveSealKey([]byte("right"))
	require.NoError(t, err)
	other, err := cryptox.DeriveSealKey([]byte("wrong"))
	require.NoError(t, err)

	sealed, err := cryptox.Seal(key, []byte("secret"))
	require.NoError(t, err)

	_, err = cryptox.Open(other, sealed)
	require.Error(t, err)

	tampered := append([]byte{}, sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = cryptox.Open(key, tampered)
	require.Error(t, err)

	_, err = cryptox.Open(key, sealed[:10])
	require.ErrorIs(t, err, cryptox.ErrSealedTooShort)
}

func TestLoadSealKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seal.key")
	require.NoError(t, os.WriteFile(path, []byte("material"), 0o600))

	fromFile, err := cryptox.LoadSealKey(path)
	require.NoError(t, err)
	direct, err := cryptox.DeriveSealKey([]byte("material"))
	require.NoError(t, err)
	require.Equal(t, direct, fromFile)

	empty := filepath.Join(dir, "empty.key")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = cryptox.LoadSealKey(empty)
	require.ErrorIs(t, err, cryptox.ErrSealKeyEmpty)

	_, err = cryptox.LoadSealKey(filepath.Join(dir, "missing.key"))
	require.Error(t, err)
}
