package domain

import (
	"fmt"
	"strings"
)

// Role names one of the six account families. Each family has its own
// credential table and ids are only unique within a family.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleClient     Role = "client"
	RoleManager    Role = "manager"
	RoleRH         Role = "rh"
	RoleComptable  Role = "comptable"
	RoleConsultant Role = "consultant"
)

var roles = []Role{RoleAdmin, RoleClient, RoleManager, RoleRH, RoleComptable, RoleConsultant}

// Roles returns every role in a stable order.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// ParseRole accepts any casing and returns the canonical role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) Valid() bool {
	for _, known := range roles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// UserRef identifies an account across all role tables.
type UserRef struct {
	Role Role
	ID   string
}

// String renders the ref as "role:id".
func (u UserRef) String() string {
	return string(u.Role) + ":" + u.ID
}

func (u UserRef) IsZero() bool {
	return u.Role == "" && u.ID == ""
}
