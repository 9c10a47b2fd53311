package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
)

type mfaSettingsRepo struct {
	db dbtx
}

const mfaSettingColumns = `id, user_type, user_id, enabled, channel, destination, created_at, updated_at`

func (r *mfaSettingsRepo) GetMFASetting(ctx context.Context, ref domain.UserRef) (domain.MFASetting, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mfaSettingColumns+` FROM mfa_settings WHERE user_type = $1 AND user_id = $2`,
		string(ref.Role), ref.ID)
	return scanMFASetting(row)
}

func (r *mfaSettingsRepo) UpsertMFASetting(ctx context.Context, s domain.MFASetting) (domain.MFASetting, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO mfa_settings (`+mfaSettingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_type, user_id) DO UPDATE SET
			enabled     = EXCLUDED.enabled,
			channel     = EXCLUDED.channel,
			destination = EXCLUDED.destination,
			updated_at  = EXCLUDED.updated_at
		RETURNING `+mfaSettingColumns,
		s.ID, string(s.User.Role), s.User.ID, s.Enabled, string(s.Channel), s.Destination,
		s.CreatedAt, s.UpdatedAt)
	return scanMFASetting(row)
}

func scanMFASetting(row rowScanner) (domain.MFASetting, error) {
	var (
		s             domain.MFASetting
		role, channel string
	)
	err := row.Scan(&s.ID, &role, &s.User.ID, &s.Enabled, &channel, &s.Destination, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.MFASetting{}, mapNotFound(err)
	}
	s.User.Role = domain.Role(role)
	s.Channel = domain.Channel(channel)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

type mfaChallengesRepo struct {
	db dbtx
}

const mfaChallengeColumns = `id, user_type, user_id, channel, destination, code_hash, expires_at, attempts, consumed_at, created_at, started_at`

func (r *mfaChallengesRepo) CreateMFAChallenge(ctx context.Context, c domain.MFAChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (`+mfaChallengeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, string(c.User.Role), c.User.ID, string(c.Channel), c.Destination, c.CodeHash,
		c.ExpiresAt, c.Attempts, nullTime(c.ConsumedAt), c.CreatedAt, c.StartedAt)
	return mapUnique(err)
}

func (r *mfaChallengesRepo) GetMFAChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	var (
		c             domain.MFAChallenge
		role, channel string
		consumedAt    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+mfaChallengeColumns+` FROM mfa_challenges WHERE id = $1`, id).
		Scan(&c.ID, &role, &c.User.ID, &channel, &c.Destination, &c.CodeHash,
			&c.ExpiresAt, &c.Attempts, &consumedAt, &c.CreatedAt, &c.StartedAt)
	if err != nil {
		return domain.MFAChallenge{}, mapNotFound(err)
	}
	c.User.Role = domain.Role(role)
	c.Channel = domain.Channel(channel)
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.StartedAt = c.StartedAt.UTC()
	c.ConsumedAt = timePtr(consumedAt)
	return c, nil
}

func (r *mfaChallengesRepo) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE mfa_challenges SET attempts = attempts + 1
		WHERE id = $1 AND consumed_at IS NULL
		RETURNING attempts`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrConflict
	}
	return attempts, err
}

func (r *mfaChallengesRepo) ConsumeMFAChallenge(ctx context.Context, id string, now time.Time, maxAttempts int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mfa_challenges SET consumed_at = $2
		WHERE id = $1
		  AND consumed_at IS NULL
		  AND attempts < $3
		  AND expires_at >= $2`,
		id, now, maxAttempts)
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

// LockUserChallenges takes a transaction-scoped advisory lock keyed on the
// user, released at commit or rollback.
func (r *mfaChallengesRepo) LockUserChallenges(ctx context.Context, ref domain.UserRef) error {
	_, err := r.db.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, "mfa_challenges:"+ref.String())
	return err
}

func (r *mfaChallengesRepo) CountMFAChallengesSince(ctx context.Context, ref domain.UserRef, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mfa_challenges
		WHERE user_type = $1 AND user_id = $2 AND started_at >= $3`,
		string(ref.Role), ref.ID, since).Scan(&n)
	return n, err
}
