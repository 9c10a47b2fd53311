package postgres

import "context"

// Truncate empties every table between conformance subtests.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE admins, clients, managers, rh, comptables, consultants,
		mfa_settings, mfa_challenges, sessions`)
	return err
}
