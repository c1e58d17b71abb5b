package authsdk

import (
	"context"
	"fmt"
	"net/http"
)

// RelayParams maps each relay action to the body field holding its target.
var RelayParams = map[string]string{
	"follow":         "user_id",
	"favorite":       "place_id",
	"join_group":     "group_id",
	"friend_request": "user_id",
	"devforum_like":  "post_id",
	"ropro_like":     "post_id",
}

// Relay runs an upstream action for up to req.Count pooled accounts.
func (c *Client) Relay(ctx context.Context, action string, req RelayRequest) (*RelayResponse, error) {
	param, ok := RelayParams[action]
	if !ok {
		return nil, fmt.Errorf("unknown relay action %q", action)
	}

	body := map[string]any{
		param:   req.TargetID,
		"count": req.Count,
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/roblox/"+action, body, bearer(req.APIPassword))
	if err != nil {
		return nil, err
	}

	var out RelayResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
