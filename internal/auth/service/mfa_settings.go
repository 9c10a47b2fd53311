package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/idx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

// MFASettingsService handles opting in and out of the email second factor.
type MFASettingsService struct {
	Store store.Store
	Now   Clock
}

// Get returns the user's setting, or a disabled one when the user never
// opted in.
func (s *MFASettingsService) Get(ctx context.Context, ref domain.UserRef) (domain.MFASetting, error) {
	setting, err := s.Store.MFASettings().GetMFASetting(ctx, ref)
	if err == nil {
		return setting, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.MFASetting{}, err
	}

	account, err := s.Store.Accounts().GetAccount(ctx, ref)
	if err != nil {
		return domain.MFASetting{}, err
	}
	return domain.MFASetting{
		User:        ref,
		Enabled:     false,
		Channel:     domain.ChannelEmail,
		Destination: account.Email,
	}, nil
}

// Enable turns MFA on. An empty destination means the account email.
func (s *MFASettingsService) Enable(ctx context.Context, ref domain.UserRef, channel domain.Channel, destination string) (domain.MFASetting, error) {
	if channel == "" {
		channel = domain.ChannelEmail
	}
	if _, err := domain.ParseChannel(string(channel)); err != nil {
		return domain.MFASetting{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	account, err := s.Store.Accounts().GetAccount(ctx, ref)
	if err != nil {
		return domain.MFASetting{}, err
	}
	if destination == "" {
		destination = account.Email
	}
	destination, err = domain.NormalizeEmail(destination)
	if err != nil {
		return domain.MFASetting{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return s.upsert(ctx, ref, true, channel, destination)
}

// Disable turns MFA off and keeps the destination for a later opt-in.
func (s *MFASettingsService) Disable(ctx context.Context, ref domain.UserRef) (domain.MFASetting, error) {
	current, err := s.Get(ctx, ref)
	if err != nil {
		return domain.MFASetting{}, err
	}
	return s.upsert(ctx, ref, false, current.Channel, current.Destination)
}

func (s *MFASettingsService) upsert(ctx context.Context, ref domain.UserRef, enabled bool, channel domain.Channel, destination string) (domain.MFASetting, error) {
	now := s.Now.now()
	setting, err := s.Store.MFASettings().UpsertMFASetting(ctx, domain.MFASetting{
		ID:          idx.NewAt(now).String(),
		User:        ref,
		Enabled:     enabled,
		Channel:     channel,
		Destination: destination,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.MFASetting{}, err
	}

	slogx.FromContext(ctx).Info("mfa setting updated",
		slog.String("user", ref.String()),
		slog.Bool("enabled", enabled),
	)
	return setting, nil
}
