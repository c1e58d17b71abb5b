package http

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/gate/internal/gate/guard"
	"github.com/aussiebroadwan/gate/internal/gate/service"
	"github.com/aussiebroadwan/gate/pkg/authsdk"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/slogx"
)

// AccountHandler serves the browser-facing account flows. Every POST here
// sits behind guard.RequireCSRF.
type AccountHandler struct {
	AuthService *service.AuthService
	Guard       *guard.Guard
	TrustProxy  bool
}

// HandleCSRF godoc
//
//	@Summary		Issue CSRF token
//	@Description	Returns the session's CSRF token and mirrors it into the XSRF-TOKEN cookie.
//	@Tags			Account
//	@Produce		json
//	@Success		200	{object}	authsdk.CSRFResponse	"csrf_token"
//	@Failure		500	{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/csrf_token [get].
func (h *AccountHandler) HandleCSRF(w http.ResponseWriter, r *http.Request) {
	tok, err := h.Guard.Issue(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.CSRFResponse{CSRFToken: tok})
}

// HandleRegister godoc
//
//	@Summary		Register
//	@Description	Create an account with an invite key. Returns an API token and rotates the CSRF token.
//	@Tags			Account
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Registration form"
//	@Success		200		{object}	authsdk.AuthResponse	"message, token"
//	@Failure		400		{object}	authsdk.ErrorResponse	"validation, breach, duplicate or invite error"
//	@Failure		403		{object}	authsdk.ErrorResponse	"invalid CSRF token or origin"
//	@Failure		429		{object}	authsdk.ErrorResponse	"too many attempts"
//	@Failure		500		{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/register [post].
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	f := httpx.FieldsFromRequest(r)

	res, err := h.AuthService.Register(r.Context(), service.RegisterInput{
		Username:        f.Get("username"),
		Email:           f.Get("email"),
		Password:        f.Get("password"),
		ConfirmPassword: f.Get("confirm_password"),
		InviteKey:       f.Get("invite_key"),
		ClientIP:        httpx.ClientIP(r, h.TrustProxy),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if _, err := h.Guard.Login(w, r, res.User.ID, res.User.Username); err != nil {
		slogx.FromContext(r.Context()).Error("failed to start session", slog.Any("error", err))
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.AuthResponse{
		Message: "Registration successful",
		Token:   res.Token,
	})
}

// HandleLogin godoc
//
//	@Summary		Log in
//	@Description	Sign in with a username or email. Unknown accounts and wrong passwords get the same 401.
//	@Description	A password found in a breach still logs in and sets password_breached.
//	@Tags			Account
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Login form"
//	@Success		200		{object}	authsdk.AuthResponse	"message, token"
//	@Failure		400		{object}	authsdk.ErrorResponse	"missing fields"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid credentials"
//	@Failure		403		{object}	authsdk.ErrorResponse	"invalid CSRF token or origin"
//	@Failure		429		{object}	authsdk.ErrorResponse	"too many attempts"
//	@Failure		500		{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/login [post].
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	f := httpx.FieldsFromRequest(r)

	res, err := h.AuthService.Login(r.Context(), service.LoginInput{
		Identifier: firstField(f, "username_or_email", "username", "email"),
		Password:   f.Get("password"),
		ClientIP:   httpx.ClientIP(r, h.TrustProxy),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if _, err := h.Guard.Login(w, r, res.User.ID, res.User.Username); err != nil {
		slogx.FromContext(r.Context()).Error("failed to start session", slog.Any("error", err))
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.AuthResponse{
		Message:          "Login successful",
		Token:            res.Token,
		PasswordBreached: res.PasswordBreached,
	})
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Clear the session identity and rotate the CSRF token. API tokens stay valid.
//	@Tags			Account
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse	"success, message"
//	@Failure		403	{object}	authsdk.ErrorResponse	"invalid CSRF token or origin"
//	@Router			/logout [post].
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Guard.Logout(w, r); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Success: true, Message: "Logged out"})
}

// HandleForgotPassword godoc
//
//	@Summary		Request a password reset
//	@Description	Mails a reset link when the account exists. The answer is the same either way.
//	@Tags			Account
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		authsdk.ForgotPasswordRequest	true	"email_or_username (email or username also accepted)"
//	@Success		200		{object}	authsdk.MessageResponse			"success, message"
//	@Failure		400		{object}	authsdk.ErrorResponse			"missing identifier"
//	@Failure		403		{object}	authsdk.ErrorResponse			"invalid CSRF token or origin"
//	@Failure		500		{object}	authsdk.ErrorResponse			"error, error_description"
//	@Router			/forgot_password [post].
func (h *AccountHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	f := httpx.FieldsFromRequest(r)

	if err := h.AuthService.ForgotPassword(r.Context(), firstField(f, "email_or_username", "email", "username")); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Success: true,
		Message: "If an account with that email or username exists, a password reset link has been sent.",
	})
}

// HandleResetPassword godoc
//
//	@Summary		Reset password
//	@Description	Set a new password with a reset token. Revokes the user's API tokens and rotates the CSRF token.
//	@Tags			Account
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		authsdk.ResetPasswordRequest	true	"Reset form"
//	@Success		200		{object}	authsdk.MessageResponse			"success, message"
//	@Failure		400		{object}	authsdk.ErrorResponse			"validation or breach error"
//	@Failure		403		{object}	authsdk.ErrorResponse			"invalid CSRF token or origin"
//	@Failure		404		{object}	authsdk.ErrorResponse			"invalid or expired reset token"
//	@Failure		500		{object}	authsdk.ErrorResponse			"error, error_description"
//	@Router			/reset_password [post].
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	f := httpx.FieldsFromRequest(r)

	_, err := h.AuthService.ResetPassword(r.Context(),
		firstField(f, "reset_token", "token"),
		f.Get("password"),
		f.Get("confirm_password"),
	)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if _, err := h.Guard.Regenerate(w, r); err != nil {
		slogx.FromContext(r.Context()).Error("failed to rotate csrf token", slog.Any("error", err))
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Success: true,
		Message: "Your password has been reset. You can now log in.",
	})
}
