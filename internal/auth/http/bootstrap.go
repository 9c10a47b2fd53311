package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Bootstrap the authentication system
//	@Description	Creates the first admin account. Only available when a bootstrap token is configured, and only until an admin exists.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token for authorization"
//	@Param			request				body		authsdk.BootstrapRequest		true	"First admin"
//	@Success		201					{object}	authsdk.BootstrapResponse		"Admin created"
//	@Failure		400					{object}	authsdk.ValidationErrorResponse	"Invalid request body or validation failed"
//	@Failure		401					{object}	authsdk.ErrorResponse			"Missing or invalid bootstrap token"
//	@Failure		404					{object}	authsdk.ErrorResponse			"Bootstrap not enabled (no token configured)"
//	@Failure		409					{object}	authsdk.ErrorResponse			"System already bootstrapped"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	l.Info("Starting to bootstrap")

	if h.BootstrapService.Token == "" {
		authsdk.ErrNotFound.WithDescription("Bootstrap endpoint is not enabled").WriteError(w)
		return
	}

	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		authsdk.ErrBootstrapUnauthorized.
			WithDescription("Bootstrap token is required in X-Bootstrap-Token header").
			WriteError(w)
		return
	}

	var req authsdk.BootstrapRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	admin, err := h.BootstrapService.Bootstrap(r.Context(), token, domain.BootstrapData{
		AdminEmail:    strings.TrimSpace(req.AdminEmail),
		AdminName:     strings.TrimSpace(req.AdminName),
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		writeServiceError(w, r, "bootstrap", err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{
		AdminID: admin.ID,
		Role:    admin.Role.String(),
	})
}
