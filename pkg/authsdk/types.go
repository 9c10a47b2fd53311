package authsdk

import (
	"time"

	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the JSON body of an APIError.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse reports per-field validation failures.
type ValidationErrorResponse struct {
	// Code is always "validation_error"
	Code string `json:"code"`

	Message string `json:"message"`

	// Details maps field names to the reason they were rejected
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Login and MFA
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	// Role selects the credential table: admin, client, manager, rh,
	// comptable or consultant
	Role     string `json:"role"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by a login without second factor and by a
// successful MFA verification.
type TokenResponse struct {
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime of the token in seconds
	ExpiresIn int `json:"expires_in"`

	Role      string `json:"role"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// MFAChallengeResponse is returned with 202 Accepted when a second factor is
// required, and by POST /v1/auth/mfa/resend.
type MFAChallengeResponse struct {
	MFARequired bool      `json:"mfa_required"`
	ChallengeID string    `json:"challenge_id"`
	Channel     string    `json:"channel"`
	Destination string    `json:"destination"` // masked, e.g. j***@example.com
	ExpiresAt   time.Time `json:"expires_at"`
	Warning     string    `json:"warning,omitempty"`
}

// VerifyMFARequest is the body of POST /v1/auth/mfa/verify.
type VerifyMFARequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// ResendMFARequest is the body of POST /v1/auth/mfa/resend.
type ResendMFARequest struct {
	ChallengeID string `json:"challenge_id"`
}

// MFASettingsResponse describes the caller's second-factor setting.
type MFASettingsResponse struct {
	Enabled     bool   `json:"enabled"`
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
}

// UpdateMFASettingsRequest is the body of PUT /v1/auth/mfa/settings.
// Destination defaults to the account email.
type UpdateMFASettingsRequest struct {
	Enabled     bool   `json:"enabled"`
	Channel     string `json:"channel,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// ============================================================================
// Session and Accounts
// ============================================================================

// MeResponse resolves a session token to the principal behind it.
type MeResponse struct {
	Role      string    `json:"role"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	SessionID string    `json:"session_id"`
	AMR       []string  `json:"amr"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChangePasswordRequest is the body of POST /v1/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// CreateAccountRequest is the body of POST /v1/auth/accounts (admin only).
type CreateAccountRequest struct {
	Role     string `json:"role"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type AccountResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================================
// Bootstrap
// ============================================================================

// BootstrapRequest creates the first admin account.
type BootstrapRequest struct {
	AdminEmail    string `json:"admin_email"`
	AdminName     string `json:"admin_name"`
	AdminPassword string `json:"admin_password"`
}

type BootstrapResponse struct {
	AdminID string `json:"admin_id"`
	Role    string `json:"role"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	// Status is "ok" or "degraded"
	Status string `json:"status"`

	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	// Checks is only set by /readyz
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks is the status of each dependency: "ok" or "error: ...".
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}

// ============================================================================
// JWKS and Development
// ============================================================================

// JWKSResponse is the public key set of /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS

// DevOutboxResponse exposes the last code sent to a destination. Only
// served by development deployments using the in-memory outbox.
type DevOutboxResponse struct {
	Destination string `json:"destination"`
	Code        string `json:"code"`
}
