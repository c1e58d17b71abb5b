package http

import (
	"net/http"

	"github.com/aussiebroadwan/gate/internal/gate/service"
	"github.com/aussiebroadwan/gate/pkg/authsdk"
	"github.com/aussiebroadwan/gate/pkg/httpx"
)

type TokensHandler struct {
	AuthService  *service.AuthService
	TokenService *service.TokenService
}

// HandleValidateToken godoc
//
//	@Summary		Validate an API token
//	@Description	Accepts the token as a Bearer header or a token field. Every failure is the same 401.
//	@Tags			Tokens
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		authsdk.ValidateTokenRequest	false	"Token, when no Authorization header is sent"
//	@Success		200		{object}	authsdk.ValidateResponse		"success, username"
//	@Failure		401		{object}	authsdk.ErrorResponse			"invalid token"
//	@Security		BearerAuth
//	@Router			/validate_token [post].
func (h *TokensHandler) HandleValidateToken(w http.ResponseWriter, r *http.Request) {
	raw, ok := httpx.BearerToken(r)
	if !ok {
		raw = httpx.FieldsFromRequest(r).Get("token")
	}

	u, err := h.AuthService.ValidateToken(r.Context(), raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{Success: true, Username: u.Username})
}

// HandleWhoAmI godoc
//
//	@Summary		Validate a Bearer token
//	@Description	Returns the owner of the Bearer token.
//	@Tags			Tokens
//	@Produce		json
//	@Success		200	{object}	authsdk.ValidateResponse	"success, username"
//	@Failure		401	{object}	authsdk.ErrorResponse		"invalid token"
//	@Security		BearerAuth
//	@Router			/auth/validate [get]
//	@Router			/auth/validate [post].
func (h *TokensHandler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteBearerError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{Success: true, Username: p.Username})
}

// HandleList godoc
//
//	@Summary		List API tokens
//	@Description	Lists the caller's tokens by id and prefix. Full token values are never returned.
//	@Tags			Tokens
//	@Produce		json
//	@Success		200	{object}	authsdk.TokenListResponse	"success, tokens"
//	@Failure		401	{object}	authsdk.ErrorResponse		"invalid token"
//	@Failure		500	{object}	authsdk.ErrorResponse		"error, error_description"
//	@Security		BearerAuth
//	@Router			/tokens [get].
func (h *TokensHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())

	tokens, err := h.TokenService.List(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.TokenListResponse{Success: true, Tokens: make([]authsdk.TokenInfo, 0, len(tokens))}
	for _, t := range tokens {
		out.Tokens = append(out.Tokens, authsdk.TokenInfo{
			ID:        t.ID,
			Prefix:    t.Prefix,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke godoc
//
//	@Summary		Revoke an API token
//	@Description	Revokes one of the caller's tokens by raw value or id. Tokens owned by others are reported as not found.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RevokeTokenRequest	true	"token or id"
//	@Success		200		{object}	authsdk.MessageResponse		"success, message"
//	@Failure		400		{object}	authsdk.ErrorResponse		"no token or id given"
//	@Failure		401		{object}	authsdk.ErrorResponse		"invalid token"
//	@Failure		404		{object}	authsdk.ErrorResponse		"token not found"
//	@Security		BearerAuth
//	@Router			/tokens [delete].
func (h *TokensHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())
	f := httpx.FieldsFromRequest(r)

	if err := h.TokenService.Revoke(r.Context(), p.UserID, f.Get("token"), f.Get("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Success: true, Message: "Token revoked"})
}
