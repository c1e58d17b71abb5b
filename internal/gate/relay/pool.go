package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/aussiebroadwan/gate/pkg/cryptox"
)

// ErrNoCookies is returned when the pool holds no entries at all.
var ErrNoCookies = errors.New("relay: no cookies configured")

// ErrMalformedCookie marks a pool entry that cannot be sent upstream.
var ErrMalformedCookie = errors.New("relay: malformed cookie entry")

// Credential is one upstream session: the .ROBLOSECURITY value and, for
// accounts that have it, the bound auth token sent alongside.
type Credential struct {
	Cookie         string
	BoundAuthToken string
}

// Validate rejects values net/http would have to rewrite before sending.
// Such entries stay in the pool and are reported per request.
func (c Credential) Validate() error {
	if c.Cookie == "" {
		return ErrMalformedCookie
	}
	for i := 0; i < len(c.Cookie); i++ {
		b := c.Cookie[i]
		if b <= ' ' || b >= 0x7f || strings.IndexByte(`;,"\`, b) >= 0 {
			return ErrMalformedCookie
		}
	}
	return nil
}

func (c Credential) String() string { return "[credential]" }

// LogValue keeps cookie values out of structured logs.
func (c Credential) LogValue() slog.Value { return slog.StringValue("[credential]") }

// Pool is the fixed set of operator-supplied credentials. It is read-only
// after construction and safe for concurrent use.
type Pool struct {
	creds []Credential
}

// NewPool wraps creds as given.
func NewPool(creds ...Credential) *Pool {
	return &Pool{creds: creds}
}

// ParsePool decodes a JSON array whose items are either cookie strings or
// objects with a cookie and an optional bound_auth_token (or bound_auth).
// Items of any other shape are kept as empty credentials.
func ParsePool(data []byte) (*Pool, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Pool{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse cookie pool: %w", err)
	}

	creds := make([]Credential, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			creds = append(creds, Credential{Cookie: s})
			continue
		}

		var obj struct {
			Cookie         string `json:"cookie"`
			BoundAuthToken string `json:"bound_auth_token"`
			BoundAuth      string `json:"bound_auth"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			tok := obj.BoundAuthToken
			if tok == "" {
				tok = obj.BoundAuth
			}
			creds = append(creds, Credential{Cookie: obj.Cookie, BoundAuthToken: tok})
			continue
		}

		creds = append(creds, Credential{})
	}
	return &Pool{creds: creds}, nil
}

// LoadPool reads the pool from inline JSON, or from a file when inline is
// empty. Neither set yields an empty pool. A non-nil sealKey means the file
// was written by cryptox.Seal.
func LoadPool(inline, path string, sealKey []byte) (*Pool, error) {
	if strings.TrimSpace(inline) != "" {
		return ParsePool([]byte(inline))
	}
	if path == "" {
		return &Pool{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie pool: %w", err)
	}
	if sealKey != nil {
		if data, err = cryptox.Open(sealKey, data); err != nil {
			return nil, fmt.Errorf("unseal cookie pool: %w", err)
		}
	}
	return ParsePool(data)
}

// Len reports every entry, malformed ones included.
func (p *Pool) Len() int { return len(p.creds) }

// Pick returns min(n, Len) distinct entries in random order.
func (p *Pool) Pick(n int) []Credential {
	if n > len(p.creds) {
		n = len(p.creds)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Credential, 0, n)
	for _, i := range rand.Perm(len(p.creds))[:n] {
		out = append(out, p.creds[i])
	}
	return out
}
