// Package storetest is the conformance suite every store driver runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/idx"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)

// Run exercises the full store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("MFASettings", func(t *testing.T) { testMFASettings(t, newStore(t)) })
	t.Run("MFAChallenges", func(t *testing.T) { testMFAChallenges(t, newStore(t)) })
	t.Run("ConcurrentConsume", func(t *testing.T) { testConcurrentConsume(t, newStore(t)) })
	t.Run("ConcurrentFailedAttempts", func(t *testing.T) { testConcurrentFailedAttempts(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("WithTx", func(t *testing.T) { testWithTx(t, newStore(t)) })
}

func requireSameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	require.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func newAccount(role domain.Role, email string) domain.Account {
	return domain.Account{
		ID:           idx.New().String(),
		Role:         role,
		Email:        email,
		Name:         "Test " + string(role),
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts()

	for _, role := range domain.Roles() {
		a := newAccount(role, "shared@example.com")
		require.NoError(t, repo.CreateAccount(ctx, a), role)

		got, err := repo.GetAccountByEmail(ctx, role, "Shared@Example.com")
		require.NoError(t, err)
		require.Equal(t, a.ID, got.ID)
		require.Equal(t, role, got.Role)
		requireSameTime(t, base, got.CreatedAt)

		byRef, err := repo.GetAccount(ctx, a.Ref())
		require.NoError(t, err)
		require.Equal(t, "shared@example.com", byRef.Email)

		n, err := repo.CountAccounts(ctx, role)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	t.Run("duplicate email in one role", func(t *testing.T) {
		err := repo.CreateAccount(ctx, newAccount(domain.RoleClient, "SHARED@example.com"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetAccountByEmail(ctx, domain.RoleRH, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = repo.GetAccount(ctx, domain.UserRef{Role: domain.RoleRH, ID: "missing"})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ids do not cross roles", func(t *testing.T) {
		a := newAccount(domain.RoleManager, "only-manager@example.com")
		require.NoError(t, repo.CreateAccount(ctx, a))

		_, err := repo.GetAccount(ctx, domain.UserRef{Role: domain.RoleConsultant, ID: a.ID})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := repo.GetAccountByEmail(ctx, domain.Role("root"), "x@example.com")
		require.ErrorIs(t, err, domain.ErrUnknownRole)
	})

	t.Run("update password hash", func(t *testing.T) {
		a := newAccount(domain.RoleComptable, "books@example.com")
		require.NoError(t, repo.CreateAccount(ctx, a))

		later := base.Add(time.Hour)
		require.NoError(t, repo.UpdatePasswordHash(ctx, a.Ref(), "new-hash", later))

		got, err := repo.GetAccount(ctx, a.Ref())
		require.NoError(t, err)
		require.Equal(t, "new-hash", got.PasswordHash)
		requireSameTime(t, later, got.UpdatedAt)

		err = repo.UpdatePasswordHash(ctx, domain.UserRef{Role: domain.RoleComptable, ID: "missing"}, "x", later)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testMFASettings(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.MFASettings()
	ref := domain.UserRef{Role: domain.RoleConsultant, ID: idx.New().String()}

	_, err := repo.GetMFASetting(ctx, ref)
	require.ErrorIs(t, err, store.ErrNotFound)

	created, err := repo.UpsertMFASetting(ctx, domain.MFASetting{
		ID: idx.New().String(), User: ref, Enabled: true, Channel: domain.ChannelEmail,
		Destination: "c@example.com", CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)
	require.True(t, created.Enabled)

	later := base.Add(time.Hour)
	updated, err := repo.UpsertMFASetting(ctx, domain.MFASetting{
		ID: idx.New().String(), User: ref, Enabled: false, Channel: domain.ChannelEmail,
		Destination: "other@example.com", CreatedAt: later, UpdatedAt: later,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID, "one setting per user")
	require.False(t, updated.Enabled)
	require.Equal(t, "other@example.com", updated.Destination)
	requireSameTime(t, base, updated.CreatedAt)
	requireSameTime(t, later, updated.UpdatedAt)

	got, err := repo.GetMFASetting(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, updated.ID, got.ID)
	require.Equal(t, ref, got.User)

	// same id in another role is a different user
	_, err = repo.GetMFASetting(ctx, domain.UserRef{Role: domain.RoleAdmin, ID: ref.ID})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func newChallenge(id string, expiresAt time.Time) domain.MFAChallenge {
	return domain.MFAChallenge{
		ID:          id,
		User:        domain.UserRef{Role: domain.RoleRH, ID: "u-" + id},
		Channel:     domain.ChannelEmail,
		Destination: "r***@example.com",
		CodeHash:    "hash-" + id,
		ExpiresAt:   expiresAt,
		CreatedAt:   base,
		StartedAt:   base,
	}
}

func testMFAChallenges(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.MFAChallenges()
	expires := base.Add(10 * time.Minute)

	t.Run("round trip", func(t *testing.T) {
		c := newChallenge("rt", expires)
		require.NoError(t, repo.CreateMFAChallenge(ctx, c))
		require.ErrorIs(t, repo.CreateMFAChallenge(ctx, c), store.ErrAlreadyExists)

		got, err := repo.GetMFAChallenge(ctx, "rt")
		require.NoError(t, err)
		require.Equal(t, c.User, got.User)
		require.Equal(t, c.CodeHash, got.CodeHash)
		require.Equal(t, 0, got.Attempts)
		require.Nil(t, got.ConsumedAt)
		requireSameTime(t, expires, got.ExpiresAt)
		requireSameTime(t, base, got.StartedAt)

		_, err = repo.GetMFAChallenge(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("failed attempts accumulate", func(t *testing.T) {
		require.NoError(t, repo.CreateMFAChallenge(ctx, newChallenge("fa", expires)))
		for want := 1; want <= 3; want++ {
			n, err := repo.RecordFailedAttempt(ctx, "fa")
			require.NoError(t, err)
			require.Equal(t, want, n)
		}
		got, err := repo.GetMFAChallenge(ctx, "fa")
		require.NoError(t, err)
		require.Equal(t, 3, got.Attempts)

		_, err = repo.RecordFailedAttempt(ctx, "missing")
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("consume once", func(t *testing.T) {
		require.NoError(t, repo.CreateMFAChallenge(ctx, newChallenge("once", expires)))
		now := base.Add(time.Minute)

		require.NoError(t, repo.ConsumeMFAChallenge(ctx, "once", now, 3))
		require.ErrorIs(t, repo.ConsumeMFAChallenge(ctx, "once", now, 3), store.ErrConflict)

		got, err := repo.GetMFAChallenge(ctx, "once")
		require.NoError(t, err)
		require.NotNil(t, got.ConsumedAt)
		requireSameTime(t, now, *got.ConsumedAt)

		_, err = repo.RecordFailedAttempt(ctx, "once")
		require.ErrorIs(t, err, store.ErrConflict, "consumed rows are frozen")
	})

	t.Run("consume refuses exhausted", func(t *testing.T) {
		require.NoError(t, repo.CreateMFAChallenge(ctx, newChallenge("ex", expires)))
		for range 3 {
			_, err := repo.RecordFailedAttempt(ctx, "ex")
			require.NoError(t, err)
		}
		require.ErrorIs(t, repo.ConsumeMFAChallenge(ctx, "ex", base, 3), store.ErrConflict)
	})

	t.Run("consume refuses expired", func(t *testing.T) {
		require.NoError(t, repo.CreateMFAChallenge(ctx, newChallenge("late", expires)))
		require.ErrorIs(t, repo.ConsumeMFAChallenge(ctx, "late", expires.Add(time.Second), 3), store.ErrConflict)
		require.NoError(t, repo.ConsumeMFAChallenge(ctx, "late", expires, 3), "expiry instant is inclusive")
	})

	t.Run("consume missing", func(t *testing.T) {
		require.ErrorIs(t, repo.ConsumeMFAChallenge(ctx, "missing", base, 3), store.ErrConflict)
	})

	t.Run("count by chain start", func(t *testing.T) {
		ref := domain.UserRef{Role: domain.RoleManager, ID: "chain"}
		for i, started := range []time.Time{base.Add(-time.Hour), base, base, base.Add(time.Minute)} {
			c := newChallenge(fmt.Sprintf("chain-%d", i), expires)
			c.User = ref
			c.StartedAt = started
			require.NoError(t, repo.CreateMFAChallenge(ctx, c))
		}
		other := newChallenge("chain-other", expires)
		require.NoError(t, repo.CreateMFAChallenge(ctx, other))

		n, err := repo.CountMFAChallengesSince(ctx, ref, base)
		require.NoError(t, err)
		require.Equal(t, 3, n)

		n, err = repo.CountMFAChallengesSince(ctx, domain.UserRef{Role: domain.RoleClient, ID: "chain"}, base)
		require.NoError(t, err)
		require.Zero(t, n, "ids are only unique within a role")

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			return tx.MFAChallenges().LockUserChallenges(ctx, ref)
		}))
	})
}

// Many concurrent consumers of one challenge: exactly one wins.
func testConcurrentConsume(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.MFAChallenges().CreateMFAChallenge(ctx, newChallenge("race", base.Add(time.Hour))))

	var wins, conflicts atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for range 8 {
		g.Go(func() error {
			err := s.WithTx(gctx, func(tx store.Tx) error {
				return tx.MFAChallenges().ConsumeMFAChallenge(gctx, "race", base, 3)
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrConflict):
				conflicts.Add(1)
			default:
				return fmt.Errorf("unexpected: %w", err)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, 7, conflicts.Load())
}

// Concurrent wrong codes against one challenge: every increment lands and
// each caller sees a distinct count.
func testConcurrentFailedAttempts(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.MFAChallenges().CreateMFAChallenge(ctx, newChallenge("miss", base.Add(time.Hour))))

	const workers = 10
	counts := make([]int, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			n, err := s.MFAChallenges().RecordFailedAttempt(gctx, "miss")
			counts[i] = n
			return err
		})
	}
	require.NoError(t, g.Wait())

	slices.Sort(counts)
	want := make([]int, workers)
	for i := range want {
		want[i] = i + 1
	}
	require.Equal(t, want, counts)

	got, err := s.MFAChallenges().GetMFAChallenge(ctx, "miss")
	require.NoError(t, err)
	require.Equal(t, workers, got.Attempts)
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Sessions()

	live := domain.Session{
		ID:        idx.New().String(),
		User:      domain.UserRef{Role: domain.RoleClient, ID: "c1"},
		AMR:       []string{"pwd", "otp", "mfa"},
		CreatedAt: base,
		ExpiresAt: base.Add(12 * time.Hour),
	}
	stale := live
	stale.ID = idx.New().String()
	stale.AMR = []string{"pwd"}
	stale.ExpiresAt = base.Add(-time.Minute)

	require.NoError(t, repo.CreateSession(ctx, live))
	require.NoError(t, repo.CreateSession(ctx, stale))

	got, err := repo.GetSession(ctx, live.ID)
	require.NoError(t, err)
	require.Equal(t, live.User, got.User)
	require.Equal(t, live.AMR, got.AMR)
	require.Nil(t, got.RevokedAt)
	requireSameTime(t, live.ExpiresAt, got.ExpiresAt)

	first := base.Add(time.Minute)
	require.NoError(t, repo.RevokeSession(ctx, live.ID, first))
	require.NoError(t, repo.RevokeSession(ctx, live.ID, first.Add(time.Hour)))
	got, err = repo.GetSession(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	requireSameTime(t, first, *got.RevokedAt)

	require.ErrorIs(t, repo.RevokeSession(ctx, "missing", first), store.ErrNotFound)

	n, err := repo.DeleteExpiredSessions(ctx, base)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = repo.GetSession(ctx, stale.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.GetSession(ctx, live.ID)
	require.NoError(t, err)
}

func testWithTx(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newAccount(domain.RoleAdmin, "tx@example.com")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Accounts().CreateAccount(ctx, a))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Accounts().GetAccount(ctx, a.Ref())
	require.ErrorIs(t, err, store.ErrNotFound, "rolled back")

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Accounts().CreateAccount(ctx, a)
	}))
	_, err = s.Accounts().GetAccount(ctx, a.Ref())
	require.NoError(t, err)

	require.NoError(t, s.Ping(ctx))
}
