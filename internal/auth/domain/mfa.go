package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
)

// Channel is the delivery mechanism for one-time codes.
type Channel string

const ChannelEmail Channel = "email"

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelEmail:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// MFASetting records whether a user has opted into a second factor.
// There is at most one per UserRef.
type MFASetting struct {
	ID          string
	User        UserRef
	Enabled     bool
	Channel     Channel
	Destination string // address codes are sent to
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChallengeState is the lifecycle position of an MFAChallenge.
type ChallengeState string

const (
	ChallengeIssued    ChallengeState = "issued"
	ChallengeVerified  ChallengeState = "verified"
	ChallengeExpired   ChallengeState = "expired"
	ChallengeExhausted ChallengeState = "exhausted"
)

// MFAChallenge is a single-use, time-boxed second-factor attempt. Only the
// hash of the code is held.
type MFAChallenge struct {
	ID          string
	User        UserRef
	Channel     Channel
	Destination string // masked
	CodeHash    string
	ExpiresAt   time.Time
	Attempts    int
	ConsumedAt  *time.Time
	CreatedAt   time.Time

	// StartedAt is when the password check that opened this chain of
	// challenges passed. Resends copy it forward.
	StartedAt time.Time
}

// NewMFAChallengeParams are the inputs to NewMFAChallenge.
type NewMFAChallengeParams struct {
	ID          string
	User        UserRef
	Channel     Channel
	Destination string
	Code        string
	TTL         time.Duration
	Now         time.Time

	// StartedAt defaults to Now. NotAfter, when set, caps ExpiresAt.
	StartedAt time.Time
	NotAfter  time.Time
}

// NewMFAChallenge builds an unconsumed challenge with zero attempts that
// expires TTL after Now, or at NotAfter if that comes first. The code is
// hashed and not retained.
func NewMFAChallenge(p NewMFAChallengeParams) (MFAChallenge, error) {
	switch {
	case p.ID == "":
		return MFAChallenge{}, errors.New("challenge id is required")
	case p.User.ID == "" || !p.User.Role.Valid():
		return MFAChallenge{}, errors.New("challenge user is required")
	case p.Code == "":
		return MFAChallenge{}, errors.New("challenge code is required")
	case p.TTL <= 0:
		return MFAChallenge{}, errors.New("challenge ttl must be positive")
	case !p.NotAfter.IsZero() && !p.NotAfter.After(p.Now):
		return MFAChallenge{}, errors.New("challenge deadline has passed")
	}
	if _, err := ParseChannel(string(p.Channel)); err != nil {
		return MFAChallenge{}, err
	}

	hash, err := cryptox.HashPassword(p.Code)
	if err != nil {
		return MFAChallenge{}, fmt.Errorf("hash code: %w", err)
	}

	now := p.Now.UTC()
	expires := now.Add(p.TTL)
	if !p.NotAfter.IsZero() && p.NotAfter.Before(expires) {
		expires = p.NotAfter.UTC()
	}
	started := now
	if !p.StartedAt.IsZero() {
		started = p.StartedAt.UTC()
	}
	return MFAChallenge{
		ID:          p.ID,
		User:        p.User,
		Channel:     p.Channel,
		Destination: p.Destination,
		CodeHash:    hash,
		ExpiresAt:   expires,
		CreatedAt:   now,
		StartedAt:   started,
	}, nil
}

// HasExpired reports whether now is past ExpiresAt. The boundary instant
// itself is still valid.
func (c *MFAChallenge) HasExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *MFAChallenge) IsConsumed() bool {
	return c.ConsumedAt != nil
}

func (c *MFAChallenge) AttemptsExhausted(maxAttempts int) bool {
	return c.Attempts >= maxAttempts
}

// MatchesCode verifies candidate against the stored hash in constant time.
func (c *MFAChallenge) MatchesCode(candidate string) bool {
	if candidate == "" || c.CodeHash == "" {
		return false
	}
	return cryptox.VerifyPassword(candidate, c.CodeHash) == nil
}

// State places the challenge in its lifecycle. Expiry is checked first, so
// a consumed challenge reads as expired once its time has passed.
func (c *MFAChallenge) State(now time.Time, maxAttempts int) ChallengeState {
	switch {
	case c.HasExpired(now):
		return ChallengeExpired
	case c.IsConsumed():
		return ChallengeVerified
	case c.AttemptsExhausted(maxAttempts):
		return ChallengeExhausted
	default:
		return ChallengeIssued
	}
}
