package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

// BootstrapService creates the first admin of an empty system.
type BootstrapService struct {
	Store    store.Store
	Accounts *AccountService
	Token    string // empty disables the token check
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	n, err := s.Store.Accounts().CountAccounts(ctx, domain.RoleAdmin)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req domain.BootstrapData) (domain.Account, error) {
	l := slogx.FromContext(ctx)

	if s.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt")
		return domain.Account{}, ErrBootstrapUnauthorized
	}

	admin, err := s.Accounts.newAccount(CreateAccountParams{
		Role:     domain.RoleAdmin,
		Email:    req.AdminEmail,
		Name:     req.AdminName,
		Password: req.AdminPassword,
	})
	if err != nil {
		return domain.Account{}, err
	}

	// Count and insert in one transaction so two racing bootstraps cannot
	// both see an empty admin table.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Accounts().CountAccounts(ctx, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrBootstrapAlready
		}
		return createAccount(ctx, tx, admin)
	})
	if err != nil {
		if errors.Is(err, ErrBootstrapAlready) {
			l.Warn("attempted bootstrap on already-bootstrapped system")
		}
		return domain.Account{}, err
	}

	l.Info("successfully bootstrapped system", slog.String("admin", admin.Ref().String()))
	return admin, nil
}
