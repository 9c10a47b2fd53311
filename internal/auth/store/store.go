package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports that a conditional update matched no row because
	// the row changed state first (consumed, exhausted, expired).
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so that a Tx cannot open a nested transaction.
type Store interface {
	Accounts() Accounts
	MFASettings() MFASettings
	MFAChallenges() MFAChallenges
	Sessions() Sessions

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Accounts is the identity store: one credential table per role.
type Accounts interface {
	// GetAccountByEmail looks up an account within a single role table.
	// Emails are matched lowercased.
	GetAccountByEmail(ctx context.Context, role domain.Role, email string) (domain.Account, error)

	GetAccount(ctx context.Context, ref domain.UserRef) (domain.Account, error)

	// CreateAccount returns ErrAlreadyExists when the email is taken in
	// that role.
	CreateAccount(ctx context.Context, a domain.Account) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, ref domain.UserRef, hash string, now time.Time) error

	CountAccounts(ctx context.Context, role domain.Role) (int, error)
}

type MFASettings interface {
	GetMFASetting(ctx context.Context, ref domain.UserRef) (domain.MFASetting, error)

	// UpsertMFASetting creates or updates the single setting of s.User and
	// returns the stored row. The id and created_at of an existing row are
	// kept.
	UpsertMFASetting(ctx context.Context, s domain.MFASetting) (domain.MFASetting, error)
}

// MFAChallenges persists challenges. The two mutations are single
// conditional UPDATEs so concurrent verifications serialize on the row.
type MFAChallenges interface {
	CreateMFAChallenge(ctx context.Context, c domain.MFAChallenge) error

	GetMFAChallenge(ctx context.Context, id string) (domain.MFAChallenge, error)

	// RecordFailedAttempt increments attempts on an unconsumed challenge and
	// returns the new count. ErrConflict when the row is missing or consumed.
	RecordFailedAttempt(ctx context.Context, id string) (int, error)

	// ConsumeMFAChallenge sets consumed_at only when the challenge is
	// unconsumed, unexpired at now and under maxAttempts. ErrConflict otherwise.
	ConsumeMFAChallenge(ctx context.Context, id string, now time.Time, maxAttempts int) error

	// LockUserChallenges serializes challenge creation for ref until the
	// surrounding transaction ends. Outside a Tx it has no lasting effect.
	LockUserChallenges(ctx context.Context, ref domain.UserRef) error

	// CountMFAChallengesSince counts the challenges of ref whose chain
	// started at or after since.
	CountMFAChallengesSince(ctx context.Context, ref domain.UserRef, since time.Time) (int, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	GetSession(ctx context.Context, id string) (domain.Session, error)

	// RevokeSession stamps revoked_at once; revoking twice keeps the first
	// timestamp.
	RevokeSession(ctx context.Context, id string, now time.Time) error

	// DeleteExpiredSessions is housekeeping. It returns the number of rows
	// removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

var accountTables = map[domain.Role]string{
	domain.RoleAdmin:      "admins",
	domain.RoleClient:     "clients",
	domain.RoleManager:    "managers",
	domain.RoleRH:         "rh",
	domain.RoleComptable:  "comptables",
	domain.RoleConsultant: "consultants",
}

// AccountTable returns the credential table of role. Drivers interpolate the
// result into SQL, so only the fixed names above are ever returned.
func AccountTable(role domain.Role) (string, error) {
	t, ok := accountTables[role]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	return t, nil
}
