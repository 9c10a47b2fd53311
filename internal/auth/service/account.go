package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
	"github.com/aussiebroadwan/agencydesk/pkg/idx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

// MinPasswordLength is the shortest accepted password, in runes.
const MinPasswordLength = 10

var ErrAccountExists = errors.New("account_exists")

type CreateAccountParams struct {
	Role     domain.Role
	Email    string
	Name     string
	Password string
}

// AccountService provisions credentials in the per-role tables.
type AccountService struct {
	Store store.Store
	Now   Clock
}

func (s *AccountService) Create(ctx context.Context, p CreateAccountParams) (domain.Account, error) {
	account, err := s.newAccount(p)
	if err != nil {
		return domain.Account{}, err
	}
	if err := createAccount(ctx, s.Store, account); err != nil {
		return domain.Account{}, err
	}

	slogx.FromContext(ctx).Info("account created",
		slog.String("user", account.Ref().String()),
	)
	return account, nil
}

// ChangePassword replaces the password of ref after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, ref domain.UserRef, current, next string) error {
	account, err := s.Store.Accounts().GetAccount(ctx, ref)
	if err != nil {
		return err
	}
	if err := cryptox.VerifyPassword(current, account.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Store.Accounts().UpdatePasswordHash(ctx, ref, hash, s.Now.now()); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password changed", slog.String("user", ref.String()))
	return nil
}

func (s *AccountService) newAccount(p CreateAccountParams) (domain.Account, error) {
	if !p.Role.Valid() {
		return domain.Account{}, fmt.Errorf("%w: %v", ErrInvalidRequest, domain.ErrUnknownRole)
	}
	email, err := domain.NormalizeEmail(p.Email)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return domain.Account{}, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if err := validatePassword(p.Password); err != nil {
		return domain.Account{}, err
	}

	hash, err := cryptox.HashPassword(p.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.Now.now()
	return domain.Account{
		ID:           idx.NewAt(now).String(),
		Role:         p.Role,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func createAccount(ctx context.Context, st store.Store, account domain.Account) error {
	if err := st.Accounts().CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRequest, MinPasswordLength)
	}
	return nil
}
