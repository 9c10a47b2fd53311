package http

import (
	"net/http"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
)

type MFASettingsHandler struct {
	Settings *service.MFASettingsService
}

// HandleGet godoc
//
//	@Summary		Get the caller's MFA setting
//	@Tags			MFA
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.MFASettingsResponse	"Current setting"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Missing, invalid or revoked token"
//	@Router			/v1/auth/mfa/settings [get].
func (h *MFASettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ref, ok := userRef(r)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	setting, err := h.Settings.Get(r.Context(), ref)
	if err != nil {
		writeServiceError(w, r, "get mfa settings", err)
		return
	}
	writeSetting(w, setting)
}

// HandlePut godoc
//
//	@Summary		Enable or disable MFA
//	@Description	Enabling without a destination sends codes to the account email. Disabling keeps the destination for later.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.UpdateMFASettingsRequest	true	"New setting"
//	@Success		200		{object}	authsdk.MFASettingsResponse			"Updated setting"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse		"Invalid channel or destination"
//	@Failure		401		{object}	authsdk.ErrorResponse				"Missing, invalid or revoked token"
//	@Router			/v1/auth/mfa/settings [put].
func (h *MFASettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ref, ok := userRef(r)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.UpdateMFASettingsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var (
		setting domain.MFASetting
		err     error
	)
	if req.Enabled {
		setting, err = h.Settings.Enable(r.Context(), ref, domain.Channel(req.Channel), req.Destination)
	} else {
		setting, err = h.Settings.Disable(r.Context(), ref)
	}
	if err != nil {
		writeServiceError(w, r, "update mfa settings", err)
		return
	}
	writeSetting(w, setting)
}

func writeSetting(w http.ResponseWriter, s domain.MFASetting) {
	channel := s.Channel
	if channel == "" {
		channel = domain.ChannelEmail
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASettingsResponse{
		Enabled:     s.Enabled,
		Channel:     string(channel),
		Destination: s.Destination,
	})
}
