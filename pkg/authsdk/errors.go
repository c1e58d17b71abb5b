package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes returned in ErrorResponse.Error.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInvalidCSRF        = "invalid_csrf"
	ErrorCodeOriginNotAllowed   = "origin_not_allowed"
	ErrorCodeRateLimited        = "rate_limited"
	ErrorCodePasswordBreached   = "password_breached"
	ErrorCodeConflict           = "conflict"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeUnauthorized       = "unauthorized"
	ErrorCodeServerError        = "server_error"
)

// APIError is an error answer from the service.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// Code is the ErrorResponse.Error value
	Code string

	// Description is the ErrorResponse.ErrorDescription value
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Description)
}

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not an ErrorResponse fall back to the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		desc := errResp.ErrorDescription
		if desc == "" {
			desc = errResp.Message
		}
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: desc,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
