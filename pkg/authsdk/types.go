package authsdk

import "time"

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the body of every error answer from the gate service.
type ErrorResponse struct {
	// Error is a short machine-readable code (e.g., "invalid_request", "rate_limited")
	Error string `json:"error"`

	// ErrorDescription is a human-readable message, safe to show to end users
	ErrorDescription string `json:"error_description,omitempty"`

	// Message is set instead of ErrorDescription by the relay endpoints
	Message string `json:"message,omitempty"`
}

// ============================================================================
// Account Types
// ============================================================================

// CSRFResponse is returned by GET /csrf_token. The same value is set in the
// XSRF-TOKEN cookie.
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// RegisterRequest contains the registration form fields.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	InviteKey       string `json:"invite_key"`
	CSRFToken       string `json:"csrf_token,omitempty"`
}

// LoginRequest contains the login form fields. UsernameOrEmail matches
// either column.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
	CSRFToken       string `json:"csrf_token,omitempty"`
}

// AuthResponse is returned by /register and /login.
type AuthResponse struct {
	Message string `json:"message"`

	// Token is an API token for the Authorization: Bearer header. It is only
	// ever shown once.
	Token string `json:"token"`

	// PasswordBreached is set on login when the password appears in a known
	// breach. The login still succeeds.
	PasswordBreached bool `json:"password_breached,omitempty"`
}

type ForgotPasswordRequest struct {
	EmailOrUsername string `json:"email_or_username"`
	CSRFToken       string `json:"csrf_token,omitempty"`
}

type ResetPasswordRequest struct {
	ResetToken      string `json:"reset_token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	CSRFToken       string `json:"csrf_token,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ============================================================================
// Token Types
// ============================================================================

// ValidateTokenRequest carries a token in the body for callers that cannot
// set headers. The Authorization header takes precedence.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateResponse is returned by /validate_token and /auth/validate.
type ValidateResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

// TokenInfo describes a stored API token without revealing it.
type TokenInfo struct {
	ID        string     `json:"id"`
	Prefix    string     `json:"prefix"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type TokenListResponse struct {
	Success bool        `json:"success"`
	Tokens  []TokenInfo `json:"tokens"`
}

// RevokeTokenRequest names the token to revoke, by raw value or by id.
type RevokeTokenRequest struct {
	Token string `json:"token,omitempty"`
	ID    string `json:"id,omitempty"`
}

// ============================================================================
// Invite Types
// ============================================================================

// MintInviteRequest creates an invite key. InviteKey is optional; one is
// generated when empty. UsesRemaining of 999 means unlimited.
type MintInviteRequest struct {
	InviteKey     string `json:"invite_key,omitempty"`
	UsesRemaining int    `json:"uses_remaining"`
	CreatedBy     string `json:"created_by,omitempty"`
	APIPassword   string `json:"api_password,omitempty"`
}

// InviteKeyResponse describes one invite key.
type InviteKeyResponse struct {
	InviteKey     string    `json:"invite_key"`
	UsesRemaining int       `json:"uses_remaining"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type CheckInviteRequest struct {
	InviteKey string `json:"invite_key"`
}

type CheckInviteResponse struct {
	Success       bool `json:"success"`
	UsesRemaining int  `json:"uses_remaining"`
}

type InviteListResponse struct {
	Invites []InviteKeyResponse `json:"invites"`
}

// ============================================================================
// Relay Types
// ============================================================================

// RelayRequest is the body of POST /roblox/{action}. TargetID is sent under
// the field the action expects (user_id, place_id, group_id or post_id).
type RelayRequest struct {
	TargetID    int64
	Count       int
	APIPassword string
}

// RelayResponse wraps a batch result.
type RelayResponse struct {
	Status    int        `json:"status"`
	Message   string     `json:"message"`
	Timestamp int64      `json:"timestamp"`
	Data      RelayBatch `json:"data"`
}

type RelayBatch struct {
	TotalAccountsUsed     int           `json:"total_accounts_used"`
	SuccessCount          int           `json:"success_count"`
	ErrorCount            int           `json:"error_count"`
	AlreadyCompleted      int           `json:"already_completed"`
	TotalAvailableCookies int           `json:"total_available_cookies"`
	Results               []RelayResult `json:"results"`
}

type RelayResult struct {
	CookieIndex      int    `json:"cookie_index"`
	Success          bool   `json:"success"`
	AlreadyCompleted bool   `json:"already_completed,omitempty"`
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Limiter indicates the attempt counter backend status
	Limiter string `json:"limiter"`
}
