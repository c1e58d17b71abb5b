package authsdk

import (
	"context"
	"net/http"
)

// ValidateToken checks an API token and returns its owner's username.
func (c *Client) ValidateToken(ctx context.Context, token string) (*ValidateResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/validate", nil, bearer(token))
	if err != nil {
		return nil, err
	}

	var out ValidateResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTokens lists the caller's API tokens. Only prefixes are returned.
func (c *Client) ListTokens(ctx context.Context, token string) (*TokenListResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/tokens", nil, bearer(token))
	if err != nil {
		return nil, err
	}

	var out TokenListResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeToken revokes one of the caller's tokens, which may be the one used
// to authenticate the call.
func (c *Client) RevokeToken(ctx context.Context, token string, req RevokeTokenRequest) (*MessageResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/tokens", req, bearer(token))
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
