package authsdk

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrSessionClosed is returned by Session calls after Logout.
var ErrSessionClosed = errors.New("authsdk: session is logged out")

// Session is an authenticated principal. Tokens are not refreshed: when the
// token expires the user logs in again.
type Session struct {
	client *SDKClient

	mu          sync.RWMutex
	accessToken string
	role        string
	userID      string
	sessionID   string
	expiresAt   time.Time
}

func newSession(client *SDKClient, tok *TokenResponse) *Session {
	return &Session{
		client:      client,
		accessToken: tok.AccessToken,
		role:        tok.Role,
		userID:      tok.UserID,
		sessionID:   tok.SessionID,
		expiresAt:   time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) Role() string      { return s.role }
func (s *Session) UserID() string    { return s.userID }
func (s *Session) SessionID() string { return s.sessionID }

// ExpiresAt is the client-side estimate of the token expiry.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

func (s *Session) token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accessToken == "" {
		return "", ErrSessionClosed
	}
	return s.accessToken, nil
}

// Me resolves the session on the server.
func (s *Session) Me(ctx context.Context) (*MeResponse, error) {
	resp, err := s.doAuthJSON(ctx, http.MethodGet, "/v1/auth/me", nil)
	if err != nil {
		return nil, err
	}

	var me MeResponse
	if err := decodeJSON(resp, &me, http.StatusOK); err != nil {
		return nil, err
	}
	return &me, nil
}

// Logout revokes the session server-side and forgets the token.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.doAuthJSON(ctx, http.MethodPost, "/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	if err := checkStatusNoContent(resp); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = ""
	s.mu.Unlock()
	return nil
}

func (s *Session) GetMFASettings(ctx context.Context) (*MFASettingsResponse, error) {
	resp, err := s.doAuthJSON(ctx, http.MethodGet, "/v1/auth/mfa/settings", nil)
	if err != nil {
		return nil, err
	}

	var out MFASettingsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMFASettings opts in or out of the email second factor.
func (s *Session) UpdateMFASettings(ctx context.Context, req UpdateMFASettingsRequest) (*MFASettingsResponse, error) {
	resp, err := s.doAuthJSON(ctx, http.MethodPut, "/v1/auth/mfa/settings", req)
	if err != nil {
		return nil, err
	}

	var out MFASettingsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	resp, err := s.doAuthJSON(ctx, http.MethodPost, "/v1/auth/password", ChangePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// CreateAccount provisions an account in any role. Admin sessions only.
func (s *Session) CreateAccount(ctx context.Context, req CreateAccountRequest) (*AccountResponse, error) {
	resp, err := s.doAuthJSON(ctx, http.MethodPost, "/v1/auth/accounts", req)
	if err != nil {
		return nil, err
	}

	var out AccountResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}
