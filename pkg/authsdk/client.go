package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Client talks to the gate service. It keeps a cookie jar so the session
// and XSRF-TOKEN cookies flow between calls the way a browser would, and
// it echoes the current CSRF token on every state-changing request.
//
// A Client carries one browser session; use one Client per simulated user.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	base *url.URL
}

// NewClient creates a client with its own cookie jar.
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
		base: u,
	}, nil
}

// CSRFToken fetches a CSRF token. The server also sets it as a cookie, which
// the client reuses until the server rotates it.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/csrf_token", nil, nil)
	if err != nil {
		return "", err
	}

	var out CSRFResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.CSRFToken, nil
}

// csrf returns the token from the XSRF-TOKEN cookie, fetching one first when
// the jar has none.
func (c *Client) csrf(ctx context.Context) (string, error) {
	if c.HTTPClient.Jar != nil {
		for _, ck := range c.HTTPClient.Jar.Cookies(c.base) {
			if ck.Name == "XSRF-TOKEN" && ck.Value != "" {
				return ck.Value, nil
			}
		}
	}
	return c.CSRFToken(ctx)
}
