package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/notify"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
)

func TestVerify_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch, code := h.loginWithMFA(t, domain.RoleAdmin, "ada@example.com")

	tok, err := h.challenges.Verify(ctx, ch.ID, code)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, tok.User.Role)

	claims, err := h.keys.Verifier.Verify(tok.Token)
	require.NoError(t, err)
	require.True(t, claims.HasAMR(jwtx.AMRMFA))
	require.True(t, claims.HasAMR(jwtx.AMROTP))
	require.Equal(t, tok.SessionID, claims.SID)

	stored, err := h.store.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ConsumedAt)

	// Replay with the same code.
	_, err = h.challenges.Verify(ctx, ch.ID, code)
	require.ErrorIs(t, err, ErrChallengeConsumed)
}

func TestVerify_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.challenges.Verify(context.Background(), "no-such-challenge", "123456")
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerify_AttemptCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch, code := h.loginWithMFA(t, domain.RoleComptable, "cole@example.com")

	_, err := h.challenges.Verify(ctx, ch.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidCode)
	_, err = h.challenges.Verify(ctx, ch.ID, "000001")
	require.ErrorIs(t, err, ErrInvalidCode)
	_, err = h.challenges.Verify(ctx, ch.ID, "000002")
	require.ErrorIs(t, err, ErrAttemptsExceeded)

	// The right code no longer helps, even well before expiry.
	_, err = h.challenges.Verify(ctx, ch.ID, code)
	require.ErrorIs(t, err, ErrAttemptsExceeded)

	stored, err := h.store.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Attempts)
	require.Nil(t, stored.ConsumedAt)
}

func TestVerify_Expiry(t *testing.T) {
	t.Run("boundary instant is still valid", func(t *testing.T) {
		h := newHarness(t)
		ch, code := h.loginWithMFA(t, domain.RoleClient, "cam@example.com")

		h.clock.Advance(10 * time.Minute)
		_, err := h.challenges.Verify(context.Background(), ch.ID, code)
		require.NoError(t, err)
	})

	t.Run("correct code after expiry", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		ch, code := h.loginWithMFA(t, domain.RoleClient, "cam@example.com")

		_, err := h.challenges.Verify(ctx, ch.ID, "999999")
		require.ErrorIs(t, err, ErrInvalidCode)

		h.clock.Advance(10*time.Minute + time.Millisecond)
		_, err = h.challenges.Verify(ctx, ch.ID, code)
		require.ErrorIs(t, err, ErrChallengeExpired)

		// Expiry is checked before attempts and never counts as one.
		stored, err := h.store.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.Attempts)
	})
}

func TestVerify_ConcurrentCorrectCode(t *testing.T) {
	h := newHarness(t)
	ch, code := h.loginWithMFA(t, domain.RoleConsultant, "kai@example.com")

	const workers = 8
	var wins, consumed atomic.Int32

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			_, err := h.challenges.Verify(context.Background(), ch.ID, code)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrChallengeConsumed):
				consumed.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(workers-1), consumed.Load())
}

func TestIssue_DeliveryFailureIsSoft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.challenges.Sender = failingSender{}

	a := h.createAccount(t, domain.RoleManager, "mona@example.com")
	_, err := h.settings.Enable(ctx, a.Ref(), domain.ChannelEmail, "")
	require.NoError(t, err)

	res, err := h.auth.Login(ctx, domain.RoleManager, "mona@example.com", testPassword)
	require.NoError(t, err)
	require.True(t, res.MFARequired())
	require.ErrorIs(t, res.Challenge.DeliveryErr, notify.ErrDeliveryFailed)

	_, err = h.store.MFAChallenges().GetMFAChallenge(ctx, res.Challenge.ID)
	require.NoError(t, err)
	require.Contains(t, scrapeMetrics(t, h), `agencydesk_auth_mfa_delivery_failures_total{channel="email"} 1`)
}

func TestIssue_CustomDestination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.createAccount(t, domain.RoleRH, "rae@example.com")

	_, err := h.settings.Enable(ctx, a.Ref(), domain.ChannelEmail, "rae.private@example.org")
	require.NoError(t, err)

	res, err := h.auth.Login(ctx, domain.RoleRH, "rae@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, "r***@example.org", res.Challenge.MaskedDestination)

	_, ok := h.outbox.Latest("rae.private@example.org")
	require.True(t, ok)
	_, ok = h.outbox.Latest("rae@example.com")
	require.False(t, ok)
}

func TestResend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, firstCode := h.loginWithMFA(t, domain.RoleConsultant, "sam@example.com")

	second, err := h.challenges.Resend(ctx, first.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	secondCode, ok := h.outbox.Latest("sam@example.com")
	require.True(t, ok)
	require.NotEqual(t, firstCode, secondCode)

	// The earlier challenge stays valid until its own expiry.
	_, err = h.challenges.Verify(ctx, first.ID, firstCode)
	require.NoError(t, err)
	_, err = h.challenges.Verify(ctx, second.ID, secondCode)
	require.NoError(t, err)

	_, err = h.challenges.Resend(ctx, first.ID)
	require.ErrorIs(t, err, ErrChallengeConsumed)

	_, err = h.challenges.Resend(ctx, "missing")
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestResend_AfterMFADisabled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch, _ := h.loginWithMFA(t, domain.RoleClient, "cy@example.com")

	a, err := h.store.Accounts().GetAccountByEmail(ctx, domain.RoleClient, "cy@example.com")
	require.NoError(t, err)
	_, err = h.settings.Disable(ctx, a.Ref())
	require.NoError(t, err)

	_, err = h.challenges.Resend(ctx, ch.ID)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestResend_DeadChallengeStaysDead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch, code := h.loginWithMFA(t, domain.RoleManager, "max@example.com")

	for range 3 {
		_, err := h.challenges.Verify(ctx, ch.ID, "000000")
		require.Error(t, err)
	}
	sent := h.outbox.Sent()

	_, err := h.challenges.Resend(ctx, ch.ID)
	require.ErrorIs(t, err, ErrAttemptsExceeded)

	h.clock.Advance(24 * time.Hour)
	_, err = h.challenges.Resend(ctx, ch.ID)
	require.ErrorIs(t, err, ErrChallengeExpired)

	require.Equal(t, sent, h.outbox.Sent(), "no code is sent for a dead challenge")
	_, err = h.challenges.Verify(ctx, ch.ID, code)
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestResend_ChainIsBounded(t *testing.T) {
	t.Run("resend count", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		first, _ := h.loginWithMFA(t, domain.RoleComptable, "cora@example.com")

		latest := first
		for range 3 {
			h.clock.Advance(time.Minute)
			next, err := h.challenges.Resend(ctx, latest.ID)
			require.NoError(t, err)
			latest = next
		}

		// Siblings share the budget of the login they came from.
		_, err := h.challenges.Resend(ctx, first.ID)
		require.ErrorIs(t, err, ErrResendLimit)
		_, err = h.challenges.Resend(ctx, latest.ID)
		require.ErrorIs(t, err, ErrResendLimit)

		// The challenges already sent stay usable.
		code, ok := h.outbox.Latest("cora@example.com")
		require.True(t, ok)
		_, err = h.challenges.Verify(ctx, latest.ID, code)
		require.NoError(t, err)
	})

	t.Run("window", func(t *testing.T) {
		h := newHarness(t)
		h.challenges.Policy.MaxResends = 10
		ctx := context.Background()
		start := h.clock.Now()
		latest, _ := h.loginWithMFA(t, domain.RoleComptable, "cole@example.com")

		for range 3 {
			h.clock.Advance(9 * time.Minute)
			next, err := h.challenges.Resend(ctx, latest.ID)
			require.NoError(t, err)
			require.False(t, next.ExpiresAt.After(start.Add(30*time.Minute)), "capped by the login window")
			latest = next
		}
		require.True(t, start.Add(30*time.Minute).Equal(latest.ExpiresAt))

		h.clock.Advance(3 * time.Minute)
		_, err := h.challenges.Resend(ctx, latest.ID)
		require.ErrorIs(t, err, ErrChallengeExpired)
	})
}

func TestVerify_ConcurrentWrongCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch, code := h.loginWithMFA(t, domain.RoleAdmin, "ada@example.com")

	const workers = 6
	var invalid, exceeded atomic.Int32

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			_, err := h.challenges.Verify(ctx, ch.ID, "000000")
			switch {
			case errors.Is(err, ErrInvalidCode):
				invalid.Add(1)
			case errors.Is(err, ErrAttemptsExceeded):
				exceeded.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(2), invalid.Load())
	require.Equal(t, int32(workers-2), exceeded.Load())

	_, err := h.challenges.Verify(ctx, ch.ID, code)
	require.ErrorIs(t, err, ErrAttemptsExceeded)

	stored, err := h.store.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, stored.Attempts, 3)
	require.Nil(t, stored.ConsumedAt)
}

func TestClassifyOrder(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	consumedAt := now.Add(-time.Minute)

	cases := []struct {
		name string
		c    domain.MFAChallenge
		want error
	}{
		{"usable", domain.MFAChallenge{ExpiresAt: now}, nil},
		{"expired beats consumed", domain.MFAChallenge{ExpiresAt: now.Add(-time.Second), ConsumedAt: &consumedAt}, ErrChallengeExpired},
		{"expired beats exhausted", domain.MFAChallenge{ExpiresAt: now.Add(-time.Second), Attempts: 5}, ErrChallengeExpired},
		{"consumed beats exhausted", domain.MFAChallenge{ExpiresAt: now.Add(time.Minute), Attempts: 3, ConsumedAt: &consumedAt}, ErrChallengeConsumed},
		{"exhausted", domain.MFAChallenge{ExpiresAt: now.Add(time.Minute), Attempts: 3}, ErrAttemptsExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.c, now, 3)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}
