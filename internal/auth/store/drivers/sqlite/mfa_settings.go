package sqlite

import (
	"context"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
)

type mfaSettingsRepo struct {
	db dbtx
}

const mfaSettingColumns = `id, user_type, user_id, enabled, channel, destination, created_at, updated_at`

func (r *mfaSettingsRepo) GetMFASetting(ctx context.Context, ref domain.UserRef) (domain.MFASetting, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mfaSettingColumns+` FROM mfa_settings WHERE user_type = ? AND user_id = ?`,
		string(ref.Role), ref.ID)
	return scanMFASetting(row)
}

func (r *mfaSettingsRepo) UpsertMFASetting(ctx context.Context, s domain.MFASetting) (domain.MFASetting, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO mfa_settings (`+mfaSettingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_type, user_id) DO UPDATE SET
			enabled     = excluded.enabled,
			channel     = excluded.channel,
			destination = excluded.destination,
			updated_at  = excluded.updated_at
		RETURNING `+mfaSettingColumns,
		s.ID, string(s.User.Role), s.User.ID, s.Enabled, string(s.Channel), s.Destination,
		toMillis(s.CreatedAt), toMillis(s.UpdatedAt))
	return scanMFASetting(row)
}

func scanMFASetting(row rowScanner) (domain.MFASetting, error) {
	var (
		s                    domain.MFASetting
		role, channel        string
		createdAt, updatedAt int64
	)
	err := row.Scan(&s.ID, &role, &s.User.ID, &s.Enabled, &channel, &s.Destination, &createdAt, &updatedAt)
	if err != nil {
		return domain.MFASetting{}, mapNotFound(err)
	}
	s.User.Role = domain.Role(role)
	s.Channel = domain.Channel(channel)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return s, nil
}
