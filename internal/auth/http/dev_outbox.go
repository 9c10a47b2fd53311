package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/agencydesk/internal/auth/notify"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
)

// DevOutboxHandler reveals the last code the in-memory outbox holds for a
// destination. It is only mounted outside production.
type DevOutboxHandler struct {
	Outbox *notify.Outbox
}

// ServeHTTP godoc
//
//	@Summary		Read the last code sent to a destination
//	@Description	Development only. Registered when codes go to the in-memory outbox instead of SMTP.
//	@Tags			Development
//	@Produce		json
//	@Param			destination	query		string						true	"Email address the code was sent to"
//	@Success		200			{object}	authsdk.DevOutboxResponse	"Latest unexpired code"
//	@Failure		400			{object}	authsdk.ErrorResponse		"Missing destination"
//	@Failure		404			{object}	authsdk.ErrorResponse		"No code for destination"
//	@Router			/v1/dev/outbox [get].
func (h *DevOutboxHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dest := strings.TrimSpace(r.URL.Query().Get("destination"))
	if dest == "" {
		authsdk.ErrInvalidRequest.WithDescription("destination is required").WriteError(w)
		return
	}

	code, ok := h.Outbox.Latest(dest)
	if !ok {
		authsdk.ErrNotFound.WithDescription("no code for destination").WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.DevOutboxResponse{Destination: dest, Code: code})
}
