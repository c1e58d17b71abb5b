package authsdk

import (
	"context"
	"net/http"
)

// MintInviteKey creates an invite key. It is gated by the API password.
func (c *Client) MintInviteKey(ctx context.Context, req MintInviteRequest) (*InviteKeyResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/invite_keys", req, nil)
	if err != nil {
		return nil, err
	}

	var out InviteKeyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckInviteKey reports whether a key could be used to register, without
// using it up.
func (c *Client) CheckInviteKey(ctx context.Context, key string) (*CheckInviteResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/check_invite_key", CheckInviteRequest{InviteKey: key}, nil)
	if err != nil {
		return nil, err
	}

	var out CheckInviteResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInvites lists the invite keys created by the token's owner.
func (c *Client) ListInvites(ctx context.Context, token string) (*InviteListResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/invites", nil, bearer(token))
	if err != nil {
		return nil, err
	}

	var out InviteListResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
