package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/metrics"
	"github.com/aussiebroadwan/agencydesk/internal/auth/notify"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

// IssuedChallenge is what the caller learns about a new challenge. The code
// itself only ever leaves through the Sender.
type IssuedChallenge struct {
	ID                string
	Channel           domain.Channel
	MaskedDestination string
	ExpiresAt         time.Time

	// DeliveryErr is set when the code could not be handed to the channel.
	// The challenge exists regardless and may still be verified or resent.
	DeliveryErr error
}

// ChallengeService issues and verifies email one-time codes.
type ChallengeService struct {
	Store    store.Store
	Sender   notify.Sender
	Sessions *SessionService
	Metrics  *metrics.Metrics
	Policy   MFAPolicy

	Now     Clock
	NewCode CodeGenerator
	NewID   IDGenerator
}

// chain carries what a resend inherits from the challenge it follows. The
// zero value opens a new chain.
type chain struct {
	startedAt time.Time
	notAfter  time.Time

	// guard runs in the transaction that creates the challenge.
	guard func(tx store.Tx) error
}

// Issue creates one challenge for account and dispatches its code to the
// destination in setting, or to the account email when none is set.
func (s *ChallengeService) Issue(ctx context.Context, account domain.Account, setting domain.MFASetting) (IssuedChallenge, error) {
	return s.issue(ctx, account, setting, s.Now.now(), chain{})
}

func (s *ChallengeService) issue(ctx context.Context, account domain.Account, setting domain.MFASetting, now time.Time, ch chain) (IssuedChallenge, error) {
	l := slogx.FromContext(ctx)
	policy := s.Policy.withDefaults()

	channel := setting.Channel
	if channel == "" {
		channel = domain.ChannelEmail
	}
	destination := setting.Destination
	if destination == "" {
		destination = account.Email
	}

	newCode, newID := s.NewCode, s.NewID
	if newCode == nil {
		newCode = defaultCode
	}
	if newID == nil {
		newID = defaultChallengeID
	}

	code, err := newCode()
	if err != nil {
		return IssuedChallenge{}, fmt.Errorf("generate code: %w", err)
	}
	id, err := newID()
	if err != nil {
		return IssuedChallenge{}, fmt.Errorf("generate challenge id: %w", err)
	}

	masked := domain.MaskEmail(destination)
	challenge, err := domain.NewMFAChallenge(domain.NewMFAChallengeParams{
		ID:          id,
		User:        account.Ref(),
		Channel:     channel,
		Destination: masked,
		Code:        code,
		TTL:         policy.CodeTTL,
		Now:         now,
		StartedAt:   ch.startedAt,
		NotAfter:    ch.notAfter,
	})
	if err != nil {
		return IssuedChallenge{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if ch.guard != nil {
			if err := ch.guard(tx); err != nil {
				return err
			}
		}
		if err := tx.MFAChallenges().CreateMFAChallenge(ctx, challenge); err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return IssuedChallenge{}, err
	}
	s.Metrics.ChallengeIssued(string(channel))

	issued := IssuedChallenge{
		ID:                challenge.ID,
		Channel:           channel,
		MaskedDestination: masked,
		ExpiresAt:         challenge.ExpiresAt,
	}

	err = s.Sender.Send(ctx, notify.Message{
		Channel:   channel,
		To:        destination,
		Code:      code,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		l.Warn("one-time code delivery failed",
			slog.String("challenge_id", challenge.ID),
			slog.String("user", account.Ref().String()),
			slog.Any("error", err),
		)
		s.Metrics.DeliveryFailed(string(channel))
		issued.DeliveryErr = err
	}

	l.Info("mfa challenge issued",
		slog.String("challenge_id", challenge.ID),
		slog.String("user", account.Ref().String()),
		slog.Time("expires_at", challenge.ExpiresAt),
	)
	return issued, nil
}

// Verify checks code against challenge id. On success the challenge is
// consumed and a session issued in the same transaction, so a code can
// produce at most one token.
func (s *ChallengeService) Verify(ctx context.Context, id, code string) (tok domain.SessionToken, err error) {
	l := slogx.FromContext(ctx)
	policy := s.Policy.withDefaults()
	now := s.Now.now()

	defer func() { s.Metrics.Verification(verifyOutcome(err)) }()

	challenge, err := s.Store.MFAChallenges().GetMFAChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SessionToken{}, ErrChallengeNotFound
		}
		return domain.SessionToken{}, err
	}

	if err := classify(challenge, now, policy.MaxAttempts); err != nil {
		return domain.SessionToken{}, err
	}

	if !challenge.MatchesCode(code) {
		attempts, err := s.Store.MFAChallenges().RecordFailedAttempt(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return domain.SessionToken{}, s.reclassify(ctx, id, now, policy.MaxAttempts)
			}
			return domain.SessionToken{}, err
		}
		l.Info("mfa code rejected",
			slog.String("challenge_id", id),
			slog.Int("attempts", attempts),
		)
		if attempts >= policy.MaxAttempts {
			return domain.SessionToken{}, ErrAttemptsExceeded
		}
		return domain.SessionToken{}, ErrInvalidCode
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAChallenges().ConsumeMFAChallenge(ctx, id, now, policy.MaxAttempts); err != nil {
			return err
		}
		account, err := tx.Accounts().GetAccount(ctx, challenge.User)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		tok, err = s.Sessions.issue(ctx, tx, account, []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.SessionToken{}, s.reclassify(ctx, id, now, policy.MaxAttempts)
		}
		return domain.SessionToken{}, err
	}

	l.Info("mfa challenge verified",
		slog.String("challenge_id", id),
		slog.String("user", challenge.User.String()),
	)
	return tok, nil
}

// Resend issues a fresh challenge to the owner of a challenge that could
// still be verified. The previous challenge is left alone and dies by its
// own expiry. Every challenge of a chain ends by the login's ResendWindow,
// and a chain holds at most MaxResends challenges after the first.
func (s *ChallengeService) Resend(ctx context.Context, id string) (IssuedChallenge, error) {
	policy := s.Policy.withDefaults()
	now := s.Now.now()

	prev, err := s.Store.MFAChallenges().GetMFAChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedChallenge{}, ErrChallengeNotFound
		}
		return IssuedChallenge{}, err
	}
	if err := classify(prev, now, policy.MaxAttempts); err != nil {
		return IssuedChallenge{}, err
	}
	deadline := prev.StartedAt.Add(policy.ResendWindow)
	if !now.Before(deadline) {
		return IssuedChallenge{}, ErrChallengeExpired
	}

	account, err := s.Store.Accounts().GetAccount(ctx, prev.User)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedChallenge{}, ErrChallengeNotFound
		}
		return IssuedChallenge{}, err
	}

	setting, err := s.Store.MFASettings().GetMFASetting(ctx, prev.User)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return IssuedChallenge{}, err
	}
	if !setting.Enabled {
		// MFA was turned off since the login; the user signs in again.
		return IssuedChallenge{}, fmt.Errorf("%w: mfa is not enabled", ErrInvalidRequest)
	}

	slogx.FromContext(ctx).Info("mfa challenge resend requested",
		slog.String("challenge_id", id),
		slog.String("user", prev.User.String()),
	)
	return s.issue(ctx, account, setting, now, chain{
		startedAt: prev.StartedAt,
		notAfter:  deadline,
		guard: func(tx store.Tx) error {
			repo := tx.MFAChallenges()
			if err := repo.LockUserChallenges(ctx, prev.User); err != nil {
				return err
			}
			n, err := repo.CountMFAChallengesSince(ctx, prev.User, prev.StartedAt)
			if err != nil {
				return err
			}
			if n > policy.MaxResends {
				return ErrResendLimit
			}
			return nil
		},
	})
}

// classify returns the terminal error of a challenge that can no longer be
// verified, or nil while it is usable.
func classify(c domain.MFAChallenge, now time.Time, maxAttempts int) error {
	switch c.State(now, maxAttempts) {
	case domain.ChallengeExpired:
		return ErrChallengeExpired
	case domain.ChallengeVerified:
		return ErrChallengeConsumed
	case domain.ChallengeExhausted:
		return ErrAttemptsExceeded
	default:
		return nil
	}
}

// reclassify explains a conditional update that lost a race by reading the
// row as the winner left it.
func (s *ChallengeService) reclassify(ctx context.Context, id string, now time.Time, maxAttempts int) error {
	c, err := s.Store.MFAChallenges().GetMFAChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return err
	}
	if err := classify(c, now, maxAttempts); err != nil {
		return err
	}
	return ErrChallengeConsumed
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.VerifySuccess
	case errors.Is(err, ErrInvalidCode):
		return metrics.VerifyInvalidCode
	case errors.Is(err, ErrChallengeNotFound):
		return metrics.VerifyNotFound
	case errors.Is(err, ErrChallengeExpired):
		return metrics.VerifyExpired
	case errors.Is(err, ErrChallengeConsumed):
		return metrics.VerifyConsumed
	case errors.Is(err, ErrAttemptsExceeded):
		return metrics.VerifyAttemptsExceeded
	default:
		return metrics.VerifyError
	}
}
