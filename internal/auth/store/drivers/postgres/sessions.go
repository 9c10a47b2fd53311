package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
)

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_type, user_id, amr, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, string(s.User.Role), s.User.ID, strings.Join(s.AMR, " "),
		s.CreatedAt, s.ExpiresAt, nullTime(s.RevokedAt))
	return mapUnique(err)
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var (
		s         domain.Session
		role, amr string
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_type, user_id, amr, created_at, expires_at, revoked_at
		FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &role, &s.User.ID, &amr, &s.CreatedAt, &s.ExpiresAt, &revokedAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.User.Role = domain.Role(role)
	s.AMR = splitAMR(amr)
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.RevokedAt = timePtr(revokedAt)
	return s, nil
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, $1) WHERE id = $2`, now, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
