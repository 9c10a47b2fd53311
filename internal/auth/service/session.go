package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/idx"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

const tokenTypeBearer = "Bearer"

// SessionService is the token-issuance routine shared by password login and
// MFA verification. Every token is backed by a session row so it can be
// revoked before it expires.
type SessionService struct {
	Store      store.Store
	KeyManager *jwtx.KeyManager
	Issuer     string
	Audience   []string
	TTL        time.Duration
	Now        Clock
}

// Issue creates a session for account and signs its token.
func (s *SessionService) Issue(ctx context.Context, account domain.Account, amr []string) (domain.SessionToken, error) {
	return s.issue(ctx, s.Store, account, amr)
}

// issue writes the session row through st, which may be a transaction.
func (s *SessionService) issue(ctx context.Context, st store.Store, account domain.Account, amr []string) (domain.SessionToken, error) {
	now := s.Now.now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	session := domain.Session{
		ID:        idx.NewAt(now).String(),
		User:      account.Ref(),
		AMR:       amr,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	claims := jwtx.NewSessionClaims(jwtx.SessionClaimsParams{
		Subject:   account.ID,
		SessionID: session.ID,
		Role:      account.Role.String(),
		Email:     account.Email,
		AMR:       amr,
		Issuer:    s.Issuer,
		Audience:  s.Audience,
		TTL:       ttl,
		Now:       now,
	})
	token, err := s.KeyManager.Signer().Sign(claims)
	if err != nil {
		return domain.SessionToken{}, fmt.Errorf("sign session token: %w", err)
	}

	if err := st.Sessions().CreateSession(ctx, session); err != nil {
		return domain.SessionToken{}, fmt.Errorf("create session: %w", err)
	}

	slogx.FromContext(ctx).Info("session issued",
		slog.String("user", session.User.String()),
		slog.String("sid", session.ID),
		slog.Any("amr", amr),
	)

	return domain.SessionToken{
		Token:     token,
		TokenType: tokenTypeBearer,
		ExpiresIn: int(ttl.Seconds()),
		User:      session.User,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Resolve maps verified claims back to the live session behind them.
func (s *SessionService) Resolve(ctx context.Context, claims jwtx.Claims) (domain.Session, error) {
	if claims.SID == "" {
		return domain.Session{}, ErrSessionInvalid
	}

	session, err := s.Store.Sessions().GetSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, ErrSessionInvalid
		}
		return domain.Session{}, err
	}

	if session.User.ID != claims.Subject || session.User.Role.String() != claims.Role {
		return domain.Session{}, ErrSessionInvalid
	}
	if !session.IsActive(s.Now.now()) {
		return domain.Session{}, ErrSessionInvalid
	}
	return session, nil
}

// ValidateSession implements httpx.SessionValidator.
func (s *SessionService) ValidateSession(ctx context.Context, claims jwtx.Claims) error {
	_, err := s.Resolve(ctx, claims)
	return err
}

// Revoke ends the session sid. Revoking an unknown session is an error.
func (s *SessionService) Revoke(ctx context.Context, sid string) error {
	if err := s.Store.Sessions().RevokeSession(ctx, sid, s.Now.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionInvalid
		}
		return err
	}
	slogx.FromContext(ctx).Info("session revoked", slog.String("sid", sid))
	return nil
}
