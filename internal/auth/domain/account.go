package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Account is a credential record in one of the per-role tables.
type Account struct {
	ID           string
	Role         Role
	Email        string // stored lowercased
	Name         string
	PasswordHash string // argon2id PHC string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Account) Ref() UserRef {
	return UserRef{Role: a.Role, ID: a.ID}
}

// NormalizeEmail trims and lowercases addr after checking it parses as a
// bare address.
func NormalizeEmail(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr), nil
}
