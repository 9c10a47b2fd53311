package http

import (
	"net/http"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
)

// AuthHandler serves login, the MFA challenge endpoints and session
// introspection.
type AuthHandler struct {
	Authenticator *service.Authenticator
	Challenges    *service.ChallengeService
	Sessions      *service.SessionService
}

// HandleLogin godoc
//
//	@Summary		Log in with email and password
//	@Description	Checks the credentials against the table of the given role. Accounts without a second factor receive a session token.
//	@Description	Accounts with MFA enabled receive 202 and a challenge id; a six digit code is sent to their destination.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest			true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse			"Signed in"
//	@Success		202		{object}	authsdk.MFAChallengeResponse	"Second factor required"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Invalid request body"
//	@Failure		401		{object}	authsdk.ErrorResponse			"Invalid credentials"
//	@Failure		429		{object}	authsdk.ErrorResponse			"Rate limit exceeded"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	res, err := h.Authenticator.Login(r.Context(), role, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, "login", err)
		return
	}

	if res.MFARequired() {
		writeChallenge(w, *res.Challenge)
		return
	}
	writeToken(w, *res.Token)
}

// HandleVerify godoc
//
//	@Summary		Complete an MFA login
//	@Description	Submits the one-time code of a challenge. A correct code consumes the challenge and returns a session token.
//	@Description	Each wrong code counts against the attempt limit; once it is reached the challenge is dead and the user must log in again.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyMFARequest		true	"Challenge id and code"
//	@Success		200		{object}	authsdk.TokenResponse			"Signed in"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Invalid request body"
//	@Failure		401		{object}	authsdk.ErrorResponse			"Wrong code"
//	@Failure		404		{object}	authsdk.ErrorResponse			"Unknown challenge"
//	@Failure		410		{object}	authsdk.ErrorResponse			"Challenge expired or already used"
//	@Failure		429		{object}	authsdk.ErrorResponse			"Attempt limit reached"
//	@Router			/v1/auth/mfa/verify [post].
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tok, err := h.Challenges.Verify(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		writeServiceError(w, r, "mfa verify", err)
		return
	}
	writeToken(w, tok)
}

// HandleResend godoc
//
//	@Summary		Resend an MFA code
//	@Description	Opens a new challenge for the same user and sends a fresh code. The old challenge stays valid until it expires.
//	@Description	Only a challenge that could still be verified can be resent, and a sign-in allows a bounded number of resends within its window.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ResendMFARequest		true	"Challenge id"
//	@Success		202		{object}	authsdk.MFAChallengeResponse	"New challenge"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Invalid request body"
//	@Failure		404		{object}	authsdk.ErrorResponse			"Unknown challenge"
//	@Failure		410		{object}	authsdk.ErrorResponse			"Challenge expired or already used"
//	@Failure		429		{object}	authsdk.ErrorResponse			"Attempt or resend limit reached"
//	@Router			/v1/auth/mfa/resend [post].
func (h *AuthHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResendMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	issued, err := h.Challenges.Resend(r.Context(), req.ChallengeID)
	if err != nil {
		writeServiceError(w, r, "mfa resend", err)
		return
	}
	writeChallenge(w, issued)
}

// HandleMe godoc
//
//	@Summary		Describe the current session
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.MeResponse		"Session principal"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or revoked token"
//	@Router			/v1/auth/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	session, err := h.Sessions.Resolve(r.Context(), claims)
	if err != nil {
		writeServiceError(w, r, "resolve session", err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{
		Role:      session.User.Role.String(),
		UserID:    session.User.ID,
		Email:     claims.Email,
		SessionID: session.ID,
		AMR:       session.AMR,
		ExpiresAt: session.ExpiresAt,
	})
}

// HandleLogout godoc
//
//	@Summary		Revoke the current session
//	@Description	The token stops being accepted immediately, even before it expires.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Success		204	"Session revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or revoked token"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	if err := h.Sessions.Revoke(r.Context(), claims.SID); err != nil {
		writeServiceError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeToken(w http.ResponseWriter, tok domain.SessionToken) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken: tok.Token,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
		Role:        tok.User.Role.String(),
		UserID:      tok.User.ID,
		SessionID:   tok.SessionID,
	})
}

func writeChallenge(w http.ResponseWriter, c service.IssuedChallenge) {
	resp := authsdk.MFAChallengeResponse{
		MFARequired: true,
		ChallengeID: c.ID,
		Channel:     string(c.Channel),
		Destination: c.MaskedDestination,
		ExpiresAt:   c.ExpiresAt,
	}
	if c.DeliveryErr != nil {
		resp.Warning = authsdk.WarningDeliveryFailed
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusAccepted, resp)
}

