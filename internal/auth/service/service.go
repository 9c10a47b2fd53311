package service

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRequest     = errors.New("invalid_request")

	ErrChallengeNotFound = errors.New("challenge_not_found")
	ErrChallengeExpired  = errors.New("challenge_expired")
	ErrChallengeConsumed = errors.New("challenge_consumed")
	ErrAttemptsExceeded  = errors.New("attempts_exceeded")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrResendLimit       = errors.New("resend_limit")

	ErrSessionInvalid = errors.New("session_invalid")
)

// CodeLength is the number of digits in a one-time code.
const CodeLength = 6

// Clock returns the current time. Services fall back to time.Now when nil.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// CodeGenerator returns a fresh plaintext one-time code.
type CodeGenerator func() (string, error)

// IDGenerator returns a fresh opaque challenge identifier.
type IDGenerator func() (string, error)

func defaultCode() (string, error) { return cryptox.GenerateNumericCode(CodeLength) }

func defaultChallengeID() (string, error) { return cryptox.GenerateToken(cryptox.TokenSize256) }

// MFAPolicy bounds the life of a challenge and of the resend chain that
// grows from one login.
type MFAPolicy struct {
	CodeTTL     time.Duration
	MaxAttempts int

	// MaxResends caps the challenges a chain may add after the first.
	MaxResends int
	// ResendWindow is how long after the login any challenge of the chain
	// may live. Never shorter than CodeTTL.
	ResendWindow time.Duration
}

func DefaultMFAPolicy() MFAPolicy {
	return MFAPolicy{
		CodeTTL:      10 * time.Minute,
		MaxAttempts:  3,
		MaxResends:   3,
		ResendWindow: 30 * time.Minute,
	}
}

func (p MFAPolicy) withDefaults() MFAPolicy {
	d := DefaultMFAPolicy()
	if p.CodeTTL <= 0 {
		p.CodeTTL = d.CodeTTL
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MaxResends <= 0 {
		p.MaxResends = d.MaxResends
	}
	if p.ResendWindow <= 0 {
		p.ResendWindow = d.ResendWindow
	}
	if p.ResendWindow < p.CodeTTL {
		p.ResendWindow = p.CodeTTL
	}
	return p
}
