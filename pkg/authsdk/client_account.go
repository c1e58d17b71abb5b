package authsdk

import (
	"context"
	"net/http"
)

// Register creates an account with an invite key.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	resp, err := c.doCSRF(ctx, "/register", req)
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login signs in with a username or email. A wrong password and an unknown
// account both return a 401 *APIError with the same description.
func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) (*AuthResponse, error) {
	resp, err := c.doCSRF(ctx, "/login", LoginRequest{UsernameOrEmail: usernameOrEmail, Password: password})
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout clears the server-side session.
func (c *Client) Logout(ctx context.Context) (*MessageResponse, error) {
	resp, err := c.doCSRF(ctx, "/logout", struct{}{})
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword asks for a reset email. The answer is the same whether or
// not the account exists.
func (c *Client) ForgotPassword(ctx context.Context, emailOrUsername string) (*MessageResponse, error) {
	resp, err := c.doCSRF(ctx, "/forgot_password", ForgotPasswordRequest{EmailOrUsername: emailOrUsername})
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetPassword sets a new password with a token from the reset email.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error) {
	resp, err := c.doCSRF(ctx, "/reset_password", req)
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
