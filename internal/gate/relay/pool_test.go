package relay

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestParsePool(t *testing.T) {
	p, err := ParsePool([]byte(`[
		"plain",
		{"cookie": "obj", "bound_auth_token": "b1"},
		{"cookie": "alias", "bound_auth": "b2"},
		{"nocookie": true},
		42,
		""
	]`))
	require.NoError(t, err)
	require.Equal(t, 6, p.Len())
	require.Equal(t, Credential{Cookie: "plain"}, p.creds[0])
	require.Equal(t, Credential{Cookie: "obj", BoundAuthToken: "b1"}, p.creds[1])
	require.Equal(t, Credential{Cookie: "alias", BoundAuthToken: "b2"}, p.creds[2])

	for _, c := range p.creds[3:] {
		require.ErrorIs(t, c.Validate(), ErrMalformedCookie)
	}

	_, err = ParsePool([]byte(`{"not":"an array"}`))
	require.Error(t, err)

	empty, err := ParsePool(nil)
	require.NoError(t, err)
	require.Zero(t, empty.Len())
}

func TestLoadPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`["a","b"]`), 0o600))

	p, err := LoadPool("", path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())

	p, err = LoadPool(`["inline"]`, path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	p, err = LoadPool("", "", nil)
	require.NoError(t, err)
	require.Zero(t, p.Len())

	_, err = LoadPool("", filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)
}

func TestLoadPool_Sealed(t *testing.T) {
	key, err := cryptox.DeriveSealKey([]byte("pool key"))
	require.NoError(t, err)
	sealed, err := cryptox.Seal(key, []byte(`["a",{"cookie":"b","bound_auth":"t"}]`))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cookies.sealed")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	p, err := LoadPool("", path, key)
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	require.Equal(t, "t", p.creds[1].BoundAuthToken)

	other, err := cryptox.DeriveSealKey([]byte("other key"))
	require.NoError(t, err)
	_, err = LoadPool("", path, other)
	require.Error(t, err)

	_, err = LoadPool("", path, nil)
	require.Error(t, err, "sealed bytes are not JSON")
}

func TestPick(t *testing.T) {
	p := NewPool(Credential{Cookie: "a"}, Credential{Cookie: "b"}, Credential{Cookie: "c"})

	require.Len(t, p.Pick(2), 2)
	require.Len(t, p.Pick(10), 3)
	require.Empty(t, p.Pick(0))

	seen := map[string]bool{}
	for _, c := range p.Pick(3) {
		require.False(t, seen[c.Cookie], "picked %s twice", c.Cookie)
		seen[c.Cookie] = true
	}
}

func TestCredentialNeverPrinted(t *testing.T) {
	c := Credential{Cookie: "_|WARNING:-DO-NOT-SHARE-THIS", BoundAuthToken: "bound"}

	require.NotContains(t, fmt.Sprintf("%v %s %+v", c, c, c), "DO-NOT-SHARE")

	var sb strings.Builder
	slog.New(slog.NewTextHandler(&sb, nil)).Info("x", slog.Any("cred", c))
	require.NotContains(t, sb.String(), "DO-NOT-SHARE")
}

func TestCredentialValidate(t *testing.T) {
	require.NoError(t, Credential{Cookie: "_|WARNING:-DO-NOT-SHARE-THIS.--|_ABC123"}.Validate())
	for _, bad := range []string{"", "a b", "a;b", "a,b", `a"b`, `a\b`, "a\tb", "a\x7fb", "é"} {
		require.ErrorIs(t, Credential{Cookie: bad}.Validate(), ErrMalformedCookie, bad)
	}
}
