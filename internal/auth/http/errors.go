package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

// serviceErrors maps service sentinels to their wire error.
var serviceErrors = []struct {
	err error
	api *authsdk.APIError
}{
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrChallengeNotFound, authsdk.ErrChallengeNotFound},
	{service.ErrChallengeExpired, authsdk.ErrChallengeExpired},
	{service.ErrChallengeConsumed, authsdk.ErrChallengeConsumed},
	{service.ErrAttemptsExceeded, authsdk.ErrAttemptsExceeded},
	{service.ErrInvalidCode, authsdk.ErrInvalidCode},
	{service.ErrResendLimit, authsdk.ErrResendLimit},
	{service.ErrSessionInvalid, authsdk.ErrInvalidToken},
	{service.ErrAccountExists, authsdk.ErrAccountExists},
	{service.ErrBootstrapUnauthorized, authsdk.ErrBootstrapUnauthorized},
	{service.ErrBootstrapAlready, authsdk.ErrAlreadyBootstrapped},
}

// writeServiceError writes the wire error for err. Unknown errors are logged
// and become server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			m.api.WriteError(w)
			return
		}
	}
	if errors.Is(err, service.ErrInvalidRequest) {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		authsdk.ErrNotFound.WriteError(w)
		return
	}

	slogx.FromContext(r.Context()).Error(op+" failed", slog.Any("error", err))
	authsdk.ErrServerError.WriteError(w)
}

// decodeAndValidate reads a JSON body into dst and runs its Validate method.
// It writes the error response and returns false on failure.
func decodeAndValidate[T interface{ Validate() map[string]string }](w http.ResponseWriter, r *http.Request, dst *T) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return false
	}
	if errs := (*dst).Validate(); errs != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Code:    authsdk.ErrorCodeValidation,
			Message: "validation failed for some fields",
			Details: errs,
		})
		return false
	}
	return true
}

// userRef returns the principal of an authenticated request.
func userRef(r *http.Request) (domain.UserRef, bool) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok || claims.Subject == "" {
		return domain.UserRef{}, false
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.UserRef{}, false
	}
	return domain.UserRef{Role: role, ID: claims.Subject}, true
}
