package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
)

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_type, user_id, amr, created_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, string(s.User.Role), s.User.ID, joinAMR(s.AMR),
		toMillis(s.CreatedAt), toMillis(s.ExpiresAt), toNullMillis(s.RevokedAt))
	return mapUnique(err)
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var (
		s                    domain.Session
		role, amr            string
		createdAt, expiresAt int64
		revokedAt            sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_type, user_id, amr, created_at, expires_at, revoked_at
		FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &role, &s.User.ID, &amr, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.User.Role = domain.Role(role)
	s.AMR = splitAMR(amr)
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	s.RevokedAt = fromNullMillis(revokedAt)
	return s, nil
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`,
		toMillis(now), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
