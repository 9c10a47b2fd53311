package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Login authenticates with role, email and password. When the account has a
// second factor the returned error is an *MFARequiredError carrying the
// challenge to pass to VerifyMFA.
func (c *SDKClient) Login(ctx context.Context, role, email, password string) (*Session, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/login", LoginRequest{
		Role:     role,
		Email:    email,
		Password: password,
	}, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusAccepted {
		var ch MFAChallengeResponse
		if err := decodeJSON(resp, &ch, http.StatusAccepted); err != nil {
			return nil, err
		}
		return nil, ch.asError()
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, &tok), nil
}

// VerifyMFA completes a login with the emailed code.
func (c *SDKClient) VerifyMFA(ctx context.Context, challengeID, code string) (*Session, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/mfa/verify", VerifyMFARequest{
		ChallengeID: challengeID,
		Code:        code,
	}, nil)
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, &tok), nil
}

// ResendMFA requests a fresh code. The returned challenge replaces the old
// one for subsequent VerifyMFA calls.
func (c *SDKClient) ResendMFA(ctx context.Context, challengeID string) (*MFARequiredError, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/mfa/resend", ResendMFARequest{ChallengeID: challengeID}, nil)
	if err != nil {
		return nil, err
	}

	var ch MFAChallengeResponse
	if err := decodeJSON(resp, &ch, http.StatusAccepted); err != nil {
		return nil, err
	}
	return ch.asError(), nil
}

// Bootstrap creates the first admin account using the deployment's
// bootstrap token.
func (c *SDKClient) Bootstrap(ctx context.Context, token string, req BootstrapRequest) (*BootstrapResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/bootstrap", req, map[string]string{
		"X-Bootstrap-Token": token,
	})
	if err != nil {
		return nil, err
	}

	var out BootstrapResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// DevOutboxCode reads the last code sent to destination from a development
// deployment. Production servers answer 404.
func (c *SDKClient) DevOutboxCode(ctx context.Context, destination string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/dev/outbox?destination="+url.QueryEscape(destination), nil, nil)
	if err != nil {
		return "", err
	}

	var out DevOutboxResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Code, nil
}

func (r MFAChallengeResponse) asError() *MFARequiredError {
	return &MFARequiredError{
		ChallengeID: r.ChallengeID,
		Channel:     r.Channel,
		Destination: r.Destination,
		ExpiresAt:   r.ExpiresAt,
		Warning:     r.Warning,
	}
}
