package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
)

type accountsRepo struct {
	db dbtx
}

const accountColumns = `id, email, name, password_hash, created_at, updated_at`

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, role domain.Role, email string) (domain.Account, error) {
	table, err := store.AccountTable(role)
	if err != nil {
		return domain.Account{}, err
	}
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE email = ?`, accountColumns, table),
		strings.ToLower(email))
	return scanAccount(row, role)
}

func (r *accountsRepo) GetAccount(ctx context.Context, ref domain.UserRef) (domain.Account, error) {
	table, err := store.AccountTable(ref.Role)
	if err != nil {
		return domain.Account{}, err
	}
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, accountColumns, table),
		ref.ID)
	return scanAccount(row, ref.Role)
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	table, err := store.AccountTable(a.Role)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?)`, table, accountColumns),
		a.ID, strings.ToLower(a.Email), a.Name, a.PasswordHash, toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	return mapUnique(err)
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, ref domain.UserRef, hash string, now time.Time) error {
	table, err := store.AccountTable(ref.Role)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET password_hash = ?, updated_at = ? WHERE id = ?`, table),
		hash, toMillis(now), ref.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *accountsRepo) CountAccounts(ctx context.Context, role domain.Role) (int, error) {
	table, err := store.AccountTable(role)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, role domain.Role) (domain.Account, error) {
	var (
		a                    domain.Account
		createdAt, updatedAt int64
	)
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &createdAt, &updatedAt); err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.Role = role
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}
