package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/relay"
	"github.com/aussiebroadwan/gate/pkg/authsdk"
	"github.com/aussiebroadwan/gate/pkg/httpx"
)

// relayEnvelope is the response shape of every /roblox endpoint.
type relayEnvelope struct {
	Status    int                 `json:"status"`
	Message   string              `json:"message"`
	Timestamp int64               `json:"timestamp"`
	Data      *authsdk.RelayBatch `json:"data,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func writeRelay(w http.ResponseWriter, code int, msg string, data *authsdk.RelayBatch) {
	env := relayEnvelope{Status: code, Message: msg, Timestamp: time.Now().Unix(), Data: data}
	if code >= http.StatusBadRequest {
		env.Error = relayErrorCode(code)
	}
	httpx.WriteJSON(w, code, env)
}

func relayErrorCode(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "invalid_request"
	}
	return "server_error"
}

func denyAsRelay(w http.ResponseWriter, code int, msg string) {
	writeRelay(w, code, msg, nil)
}

type RelayHandler struct {
	Relay  *relay.Relay
	Action relay.Action
}

// ServeHTTP godoc
//
//	@Summary		Run an upstream action
//	@Description	Runs the action for up to count randomly chosen pooled accounts and reports one result per account.
//	@Description	The target goes in user_id (follow, friend_request), place_id (favorite), group_id (join_group) or post_id (devforum_like, ropro_like).
//	@Description	Requires the API password (query, body or Bearer).
//	@Tags			Relay
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			action	path		string					true	"follow, favorite, join_group, friend_request, devforum_like or ropro_like"
//	@Param			count	query		int						false	"Accounts to use, default 1"
//	@Success		200		{object}	authsdk.RelayResponse	"status, message, timestamp, data"
//	@Failure		400		{object}	authsdk.ErrorResponse	"missing target or no accounts configured"
//	@Failure		401		{object}	authsdk.ErrorResponse	"missing or wrong API password"
//	@Router			/roblox/{action} [post].
func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f := httpx.FieldsFromRequest(r)
	a := h.Action

	raw := strings.TrimSpace(f.Get(a.Param))
	if raw == "" {
		writeRelay(w, http.StatusBadRequest, a.Param+" is required", nil)
		return
	}
	target, ok := relay.ParseTarget(raw)
	if !ok {
		writeRelay(w, http.StatusBadRequest, a.Param+" must be a positive integer", nil)
		return
	}

	count := 1
	if n, err := strconv.Atoi(strings.TrimSpace(f.Get("count"))); err == nil && n > 1 {
		count = n
	}

	batch, err := h.Relay.Run(r.Context(), a, target, count)
	if err != nil {
		if errors.Is(err, relay.ErrNoCookies) {
			writeRelay(w, http.StatusBadRequest, "No cookies available or invalid JSON format", nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	out := batchResponse(batch)
	writeRelay(w, http.StatusOK, a.Completed, &out)
}

func batchResponse(b relay.Batch) authsdk.RelayBatch {
	out := authsdk.RelayBatch{
		TotalAccountsUsed:     b.TotalAccountsUsed,
		SuccessCount:          b.SuccessCount,
		ErrorCount:            b.ErrorCount,
		AlreadyCompleted:      b.AlreadyCompleted,
		TotalAvailableCookies: b.TotalAvailableCookies,
		Results:               make([]authsdk.RelayResult, 0, len(b.Results)),
	}
	for _, res := range b.Results {
		out.Results = append(out.Results, authsdk.RelayResult{
			CookieIndex:      res.CookieIndex,
			Success:          res.Success,
			AlreadyCompleted: res.AlreadyCompleted,
			Message:          res.Message,
			Error:            res.Error,
		})
	}
	return out
}
