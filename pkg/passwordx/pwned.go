package passwordx

import (
	"bufio"
	"context"
	"crypto/sha1" // #nosec G505 -- the range API is keyed by SHA-1
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gate/pkg/slogx"
)

const (
	DefaultPwnedEndpoint = "https://api.pwnedpasswords.com/range/"
	DefaultPwnedTimeout  = 5 * time.Second

	userAgent     = "gate-breach-check/1.0"
	maxRangeBytes = 2 << 20
)

// BreachChecker reports whether a password appears in a known breach.
type BreachChecker interface {
	IsBreached(ctx context.Context, password string) bool
}

// PwnedClient queries a Have I Been Pwned style range endpoint. Only the first
// five hex characters of the SHA-1 leave the process.
//
// Lookups fail open: a network error, timeout or non-200 answer is logged at
// warn level and the password is treated as not breached, so an outage of the
// range service never blocks sign-in or sign-up.
type PwnedClient struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// PwnedOption configures a PwnedClient.
type PwnedOption func(*PwnedClient)

// WithEndpoint overrides the range URL prefix; the hash prefix is appended to it.
func WithEndpoint(u string) PwnedOption {
	return func(c *PwnedClient) {
		if u != "" {
			if !strings.HasSuffix(u, "/") {
				u += "/"
			}
			c.endpoint = u
		}
	}
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) PwnedOption {
	return func(c *PwnedClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the transport, mostly for tests.
func WithHTTPClient(h *http.Client) PwnedOption {
	return func(c *PwnedClient) {
		if h != nil {
			c.http = h
		}
	}
}

func NewPwnedClient(opts ...PwnedOption) *PwnedClient {
	c := &PwnedClient{
		endpoint: DefaultPwnedEndpoint,
		timeout:  DefaultPwnedTimeout,
		http:     &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsBreached never returns an error. See the type comment for the failure policy.
func (c *PwnedClient) IsBreached(ctx context.Context, password string) bool {
	prefix, suffix := hashParts(password)
	log := slogx.FromContext(ctx).With(slog.String("hash_prefix", prefix))

	found, err := c.lookup(ctx, prefix, suffix)
	if err != nil {
		log.Warn("breach check unavailable, allowing password", "err", err)
		return false
	}
	return found
}

func (c *PwnedClient) lookup(ctx context.Context, prefix, suffix string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+prefix, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("range endpoint returned HTTP %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(io.LimitReader(resp.Body, maxRangeBytes))
	for sc.Scan() {
		tail, count, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok {
			continue
		}
		// padded responses list fake suffixes with a count of zero
		if tail == suffix && strings.TrimSpace(count) != "0" {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// hashParts returns the upper-case SHA-1 hex of password split 5/35.
func hashParts(password string) (string, string) {
	sum := sha1.Sum([]byte(password)) // #nosec G401
	h := strings.ToUpper(hex.EncodeToString(sum[:]))
	return h[:5], h[5:]
}

// NopChecker never reports a breach. It backs HIBP_ENABLED=false.
type NopChecker struct{}

func (NopChecker) IsBreached(context.Context, string) bool { return false }
