package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	cookieName      = ".ROBLOSECURITY"
	headerCSRF      = "X-Csrf-Token"
	headerBound     = "X-Bound-Auth-Token"
	headerChallenge = "Rblx-Challenge-Id"

	browserUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodySize = 1 << 20
)

// Endpoints are the upstream base URLs, without a trailing slash. Tests point
// all of them at one httptest server.
type Endpoints struct {
	Web      string
	Users    string
	Friends  string
	Games    string
	Groups   string
	DevForum string
	RoPro    string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Web:      "https://www.roblox.com",
		Users:    "https://users.roblox.com",
		Friends:  "https://friends.roblox.com",
		Games:    "https://games.roblox.com",
		Groups:   "https://groups.roblox.com",
		DevForum: "https://devforum.roblox.com",
		RoPro:    "https://api.ropro.io",
	}
}

// Single returns Endpoints with every base set to u.
func Single(u string) Endpoints {
	u = strings.TrimSuffix(u, "/")
	return Endpoints{Web: u, Users: u, Friends: u, Games: u, Groups: u, DevForum: u, RoPro: u}
}

func (e Endpoints) all() []string {
	return []string{e.Web, e.Users, e.Friends, e.Games, e.Groups, e.DevForum, e.RoPro}
}

var bodyTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Roblox\.XsrfToken\.setToken\('([^']+)'\);`),
	regexp.MustCompile(`data-token="([^"]+)"`),
	regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)"`),
}

// request is an upstream call that can be replayed with a different token.
type request struct {
	method      string
	url         string
	contentType string
	body        []byte
	referer     string
	origin      string
	bound       bool // send the bound auth token
}

type reply struct {
	status int
	header http.Header
	body   []byte
}

func (r *reply) ok() bool { return r.status >= 200 && r.status < 300 }

// session is the per-credential state for one batch: its own cookie jar, so
// cookies set by one upstream call are replayed on the next, and the
// authenticated user id once known.
type session struct {
	cred    Credential
	ep      Endpoints
	client  *http.Client
	timeout time.Duration

	me int64
}

func newSession(cred Credential, ep Endpoints, transport http.RoundTripper, timeout time.Duration) (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	for _, base := range ep.all() {
		u, err := url.Parse(base)
		if err != nil || u.Host == "" {
			continue
		}
		jar.SetCookies(u, []*http.Cookie{{Name: cookieName, Value: cred.Cookie, Path: "/"}})
	}
	return &session{
		cred:    cred,
		ep:      ep,
		client:  &http.Client{Transport: transport, Jar: jar},
		timeout: timeout,
	}, nil
}

// do sends one call bounded by the session timeout. token, when set, goes in
// the anti-forgery header.
func (s *session) do(ctx context.Context, req request, token string) (*reply, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, err
	}
	hr.Header.Set("User-Agent", browserUA)
	hr.Header.Set("Accept", "application/json, text/plain, */*")
	hr.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if req.contentType != "" {
		hr.Header.Set("Content-Type", req.contentType)
	}
	if req.referer != "" {
		hr.Header.Set("Referer", req.referer)
	}
	if req.origin != "" {
		hr.Header.Set("Origin", req.origin)
	}
	if req.bound && s.cred.BoundAuthToken != "" {
		hr.Header.Set(headerBound, s.cred.BoundAuthToken)
	}
	if token != "" {
		hr.Header.Set(headerCSRF, token)
	}

	resp, err := s.client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	return &reply{status: resp.StatusCode, header: resp.Header, body: b}, nil
}

func (s *session) get(u string) request {
	return request{method: http.MethodGet, url: u, referer: "https://www.roblox.com/", origin: "https://www.roblox.com", bound: true}
}

// getJSON decodes a 2xx JSON answer into v. v may be nil to only require a
// well-formed JSON body.
func (s *session) getJSON(ctx context.Context, u string, v any) error {
	rep, err := s.do(ctx, s.get(u), "")
	if err != nil {
		return err
	}
	if !rep.ok() {
		return fmt.Errorf("upstream returned HTTP %d", rep.status)
	}
	if v == nil {
		var discard any
		v = &discard
	}
	return json.Unmarshal(rep.body, v)
}

// whoami resolves the user id behind the cookie, once per session.
func (s *session) whoami(ctx context.Context) (int64, error) {
	if s.me != 0 {
		return s.me, nil
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := s.getJSON(ctx, s.ep.Users+"/v1/users/authenticated", &out); err != nil {
		return 0, err
	}
	if out.ID <= 0 {
		return 0, errors.New("authenticated user has no id")
	}
	s.me = out.ID
	return s.me, nil
}

// acquire runs the priming call and extracts a token from its response. A
// failed priming call yields no token; the action is still attempted.
func (s *session) acquire(ctx context.Context, primer request) string {
	rep, err := s.do(ctx, primer, "")
	if err != nil {
		return ""
	}
	return extractToken(rep)
}

// extractToken looks at the response header first and the body second.
func extractToken(rep *reply) string {
	if t := headerToken(rep); t != "" {
		return t
	}
	for _, re := range bodyTokenPatterns {
		if m := re.FindSubmatch(rep.body); m != nil {
			return string(m[1])
		}
	}
	var js struct {
		Token string `json:"token"`
		CSRF  string `json:"csrf"`
	}
	if err := json.Unmarshal(rep.body, &js); err == nil {
		if js.Token != "" {
			return js.Token
		}
		return js.CSRF
	}
	return ""
}

func headerToken(rep *reply) string {
	return strings.TrimSpace(rep.header.Get(headerCSRF))
}
