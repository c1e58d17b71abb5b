package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/service"
	"github.com/aussiebroadwan/gate/pkg/authsdk"
	"github.com/aussiebroadwan/gate/pkg/httpx"
)

type InvitesHandler struct {
	InviteService *service.InviteService
}

func inviteResponse(k domain.InviteKey) authsdk.InviteKeyResponse {
	return authsdk.InviteKeyResponse{
		InviteKey:     k.Key,
		UsesRemaining: k.UsesRemaining,
		CreatedBy:     k.CreatedBy,
		CreatedAt:     k.CreatedAt,
	}
}

// HandleMint godoc
//
//	@Summary		Mint an invite key
//	@Description	Creates an invite key. Without invite_key one is generated. uses_remaining defaults to 1; 999 means unlimited.
//	@Description	Requires the API password (query, body or Bearer).
//	@Tags			Invitations
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		authsdk.MintInviteRequest	true	"Invite key request"
//	@Success		200		{object}	authsdk.InviteKeyResponse	"invite_key, uses_remaining, created_by"
//	@Failure		400		{object}	authsdk.ErrorResponse		"validation error or duplicate key"
//	@Failure		401		{object}	authsdk.ErrorResponse		"missing or wrong API password"
//	@Failure		500		{object}	authsdk.ErrorResponse		"error, error_description"
//	@Router			/invite_keys [post].
func (h *InvitesHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	f := httpx.FieldsFromRequest(r)

	uses := 1
	if v := strings.TrimSpace(f.Get("uses_remaining")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "uses_remaining must be an integer")
			return
		}
		uses = n
	}

	k, err := h.InviteService.Mint(r.Context(), service.MintInput{
		Key:           f.Get("invite_key"),
		CreatedBy:     f.Get("created_by"),
		UsesRemaining: uses,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inviteResponse(k))
}

// HandleCheck godoc
//
//	@Summary		Check an invite key
//	@Description	Reports whether a key could be used to register, without using it up.
//	@Tags			Invitations
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		authsdk.CheckInviteRequest	true	"invite_key"
//	@Success		200		{object}	authsdk.CheckInviteResponse	"success, uses_remaining"
//	@Failure		400		{object}	authsdk.ErrorResponse		"missing or exhausted key"
//	@Failure		404		{object}	authsdk.ErrorResponse		"key not found"
//	@Router			/check_invite_key [post].
func (h *InvitesHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	k, err := h.InviteService.Check(r.Context(), httpx.FieldsFromRequest(r).Get("invite_key"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.CheckInviteResponse{Success: true, UsesRemaining: k.UsesRemaining})
}

// HandleList godoc
//
//	@Summary		List my invite keys
//	@Description	Lists the invite keys created by the Bearer token's owner.
//	@Tags			Invitations
//	@Produce		json
//	@Success		200	{object}	authsdk.InviteListResponse	"invites"
//	@Failure		401	{object}	authsdk.ErrorResponse		"invalid token"
//	@Security		BearerAuth
//	@Router			/invites [get].
func (h *InvitesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())

	keys, err := h.InviteService.ListByCreator(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.InviteListResponse{Invites: make([]authsdk.InviteKeyResponse, 0, len(keys))}
	for _, k := range keys {
		out.Invites = append(out.Invites, inviteResponse(k))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
