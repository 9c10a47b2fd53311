package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeValidation          = "validation_error"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeChallengeNotFound   = "challenge_not_found"
	ErrorCodeChallengeExpired    = "challenge_expired"
	ErrorCodeChallengeConsumed   = "challenge_consumed"
	ErrorCodeAttemptsExceeded    = "attempts_exceeded"
	ErrorCodeResendLimit         = "resend_limit"
	ErrorCodeInvalidCode         = "invalid_code"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeAccessDenied        = "access_denied"
	ErrorCodeAccountExists       = "account_exists"
	ErrorCodeUnauthorized        = "unauthorized"
	ErrorCodeAlreadyBootstrapped = "already_bootstrapped"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeRateLimitExceeded   = "rate_limit_exceeded"
	ErrorCodeServerError         = "server_error"
	ErrorCodeMFARequired         = "mfa_required"
)

// WarningDeliveryFailed is set on a challenge response when the code could
// not be handed to the delivery channel. The challenge still exists.
const WarningDeliveryFailed = "delivery_failed"

// ============================================================================
// APIError
// ============================================================================

// APIError is the error body of every non-2xx response. The server writes
// it with WriteError and the client returns it from failed calls.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on Code, so errors.Is(err, authsdk.ErrChallengeExpired) holds for
// any APIError with that code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as a JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// WithDescription returns a copy of e carrying desc.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	ErrChallengeNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeChallengeNotFound,
		Description: "unknown challenge",
	}

	// ErrChallengeExpired, ErrChallengeConsumed and ErrAttemptsExceeded are
	// terminal: the client should sign in again rather than retry.
	ErrChallengeExpired = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeChallengeExpired,
		Description: "the code has expired, sign in again",
	}

	ErrChallengeConsumed = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeChallengeConsumed,
		Description: "the code has already been used",
	}

	ErrAttemptsExceeded = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeAttemptsExceeded,
		Description: "too many incorrect codes, sign in again",
	}

	ErrResendLimit = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeResendLimit,
		Description: "no more codes can be sent for this sign-in",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCode,
		Description: "the code is incorrect",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	ErrAccessDenied = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAccessDenied,
		Description: "access denied",
	}

	ErrAccountExists = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAccountExists,
		Description: "an account with this email already exists for this role",
	}

	ErrBootstrapUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "invalid bootstrap token",
	}

	ErrAlreadyBootstrapped = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyBootstrapped,
		Description: "system has already been bootstrapped",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// ============================================================================
// MFA Required
// ============================================================================

// MFARequiredError is returned by SDKClient.Login when the account has a
// second factor. Complete the login with SDKClient.VerifyMFA.
type MFARequiredError struct {
	ChallengeID string
	Channel     string
	Destination string // masked
	ExpiresAt   time.Time

	// Warning is WarningDeliveryFailed when the code was not sent.
	Warning string
}

func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("mfa required: code sent by %s to %s", e.Channel, e.Destination)
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError. Returns nil
// for 2xx.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	var valErr ValidationErrorResponse
	if err := json.Unmarshal(body, &valErr); err == nil && valErr.Code != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        valErr.Code,
			Description: valErr.Message,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
