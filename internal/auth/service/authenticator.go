package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/metrics"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

// LoginResult holds exactly one of Token (no second factor) or Challenge
// (second factor pending).
type LoginResult struct {
	Token     *domain.SessionToken
	Challenge *IssuedChallenge
}

func (r LoginResult) MFARequired() bool { return r.Challenge != nil }

// Authenticator checks primary credentials against the role's credential
// table and either signs the user in or opens an MFA challenge.
type Authenticator struct {
	Store      store.Store
	Sessions   *SessionService
	Challenges *ChallengeService
	Metrics    *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

func (a *Authenticator) Login(ctx context.Context, role domain.Role, email, password string) (LoginResult, error) {
	l := slogx.FromContext(ctx)

	if !role.Valid() {
		return LoginResult{}, ErrInvalidRequest
	}
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := a.Store.Accounts().GetAccountByEmail(ctx, role, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.Metrics.LoginAttempt(role.String(), metrics.LoginError)
			return LoginResult{}, err
		}
		// Same hashing cost as a real account so response time does not
		// reveal which emails exist.
		_ = cryptox.VerifyPassword(password, a.dummy())
		l.Info("login rejected", slog.String("role", role.String()), slog.String("reason", "unknown account"))
		a.Metrics.LoginAttempt(role.String(), metrics.LoginInvalid)
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		l.Info("login rejected", slog.String("user", account.Ref().String()), slog.String("reason", "bad password"))
		a.Metrics.LoginAttempt(role.String(), metrics.LoginInvalid)
		return LoginResult{}, ErrInvalidCredentials
	}

	setting, err := a.Store.MFASettings().GetMFASetting(ctx, account.Ref())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.Metrics.LoginAttempt(role.String(), metrics.LoginError)
		return LoginResult{}, err
	}

	if !setting.Enabled {
		tok, err := a.Sessions.Issue(ctx, account, []string{jwtx.AMRPassword})
		if err != nil {
			a.Metrics.LoginAttempt(role.String(), metrics.LoginError)
			return LoginResult{}, err
		}
		a.Metrics.LoginAttempt(role.String(), metrics.LoginSuccess)
		return LoginResult{Token: &tok}, nil
	}

	issued, err := a.Challenges.Issue(ctx, account, setting)
	if err != nil {
		a.Metrics.LoginAttempt(role.String(), metrics.LoginError)
		return LoginResult{}, err
	}
	a.Metrics.LoginAttempt(role.String(), metrics.LoginMFARequired)
	return LoginResult{Challenge: &issued}, nil
}

func (a *Authenticator) dummy() string {
	a.dummyOnce.Do(func() {
		h, err := cryptox.HashPassword("agencydesk-login-placeholder")
		if err == nil {
			a.dummyHash = h
		}
	})
	return a.dummyHash
}
