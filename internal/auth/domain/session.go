package domain

import "time"

// Session backs an issued token. Revoking the row invalidates the token
// before its exp.
type Session struct {
	ID        string
	User      UserRef
	AMR       []string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && !now.After(s.ExpiresAt)
}

// SessionToken is the result of a completed login, direct or via MFA.
type SessionToken struct {
	Token     string
	TokenType string
	ExpiresIn int // seconds
	User      UserRef
	SessionID string
	ExpiresAt time.Time
}
