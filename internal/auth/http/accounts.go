package http

import (
	"net/http"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
)

type AccountsHandler struct {
	Accounts *service.AccountService
}

// HandleCreate godoc
//
//	@Summary		Create an account
//	@Description	Provisions credentials in the table of the given role. Admin only.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.CreateAccountRequest	true	"Account"
//	@Success		201		{object}	authsdk.AccountResponse			"Created"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Invalid request body"
//	@Failure		401		{object}	authsdk.ErrorResponse			"Missing, invalid or revoked token"
//	@Failure		403		{object}	authsdk.ErrorResponse			"Caller is not an admin"
//	@Failure		409		{object}	authsdk.ErrorResponse			"Email already used in this role"
//	@Router			/v1/auth/accounts [post].
func (h *AccountsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateAccountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	account, err := h.Accounts.Create(r.Context(), service.CreateAccountParams{
		Role:     role,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, "create account", err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.AccountResponse{
		ID:        account.ID,
		Role:      account.Role.String(),
		Email:     account.Email,
		Name:      account.Name,
		CreatedAt: account.CreatedAt,
	})
}

// HandleChangePassword godoc
//
//	@Summary		Change the caller's password
//	@Tags			Accounts
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		204		"Password changed"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Invalid request body"
//	@Failure		401		{object}	authsdk.ErrorResponse			"Wrong current password or invalid token"
//	@Router			/v1/auth/password [post].
func (h *AccountsHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ref, ok := userRef(r)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.Accounts.ChangePassword(r.Context(), ref, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
