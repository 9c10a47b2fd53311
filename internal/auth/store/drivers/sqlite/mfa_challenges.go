package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
)

type mfaChallengesRepo struct {
	db dbtx
}

const mfaChallengeColumns = `id, user_type, user_id, channel, destination, code_hash, expires_at, attempts, consumed_at, created_at, started_at`

func (r *mfaChallengesRepo) CreateMFAChallenge(ctx context.Context, c domain.MFAChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (`+mfaChallengeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.User.Role), c.User.ID, string(c.Channel), c.Destination, c.CodeHash,
		toMillis(c.ExpiresAt), c.Attempts, toNullMillis(c.ConsumedAt), toMillis(c.CreatedAt),
		toMillis(c.StartedAt))
	return mapUnique(err)
}

func (r *mfaChallengesRepo) GetMFAChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mfaChallengeColumns+` FROM mfa_challenges WHERE id = ?`, id)

	var (
		c                               domain.MFAChallenge
		role, channel                   string
		expiresAt, createdAt, startedAt int64
		consumedAt                      sql.NullInt64
	)
	err := row.Scan(&c.ID, &role, &c.User.ID, &channel, &c.Destination, &c.CodeHash,
		&expiresAt, &c.Attempts, &consumedAt, &createdAt, &startedAt)
	if err != nil {
		return domain.MFAChallenge{}, mapNotFound(err)
	}
	c.User.Role = domain.Role(role)
	c.Channel = domain.Channel(channel)
	c.ExpiresAt = fromMillis(expiresAt)
	c.ConsumedAt = fromNullMillis(consumedAt)
	c.CreatedAt = fromMillis(createdAt)
	c.StartedAt = fromMillis(startedAt)
	return c, nil
}

func (r *mfaChallengesRepo) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE mfa_challenges SET attempts = attempts + 1
		WHERE id = ? AND consumed_at IS NULL
		RETURNING attempts`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrConflict
	}
	return attempts, err
}

func (r *mfaChallengesRepo) ConsumeMFAChallenge(ctx context.Context, id string, now time.Time, maxAttempts int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mfa_challenges SET consumed_at = ?
		WHERE id = ?
		  AND consumed_at IS NULL
		  AND attempts < ?
		  AND expires_at >= ?`,
		toMillis(now), id, maxAttempts, toMillis(now))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

// LockUserChallenges is a no-op: the store runs on a single connection, so
// an open transaction already excludes every other writer.
func (r *mfaChallengesRepo) LockUserChallenges(ctx context.Context, ref domain.UserRef) error {
	return nil
}

func (r *mfaChallengesRepo) CountMFAChallengesSince(ctx context.Context, ref domain.UserRef, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mfa_challenges
		WHERE user_type = ? AND user_id = ? AND started_at >= ?`,
		string(ref.Role), ref.ID, toMillis(since)).Scan(&n)
	return n, err
}
