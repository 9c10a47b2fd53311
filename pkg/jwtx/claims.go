package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication method references carried in the "amr" claim.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRMFA      = "mfa"
)

// Claims are the session-token claims shared by every agencydesk service.
type Claims struct {
	jwt.RegisteredClaims

	// SID references the server-side session row; revoking the row revokes
	// the token.
	SID string `json:"sid,omitempty"`

	// Role is the account family the subject belongs to ("admin",
	// "consultant", ...). Subject ids are only unique within a role.
	Role string `json:"role,omitempty"`

	// AMR lists how the subject authenticated, e.g. ["pwd","otp","mfa"].
	AMR []string `json:"amr,omitempty"`

	Email string `json:"email,omitempty"`
}

// SessionClaimsParams are the inputs to NewSessionClaims.
type SessionClaimsParams struct {
	Subject   string
	SessionID string
	Role      string
	Email     string
	AMR       []string
	Issuer    string
	Audience  []string
	TTL       time.Duration
	Now       time.Time
}

// NewSessionClaims builds claims valid from p.Now for p.TTL.
func NewSessionClaims(p SessionClaimsParams) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		SID:   p.SessionID,
		Role:  p.Role,
		AMR:   p.AMR,
		Email: p.Email,
	}
}

// NewJTI returns a random URL-safe identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasAMR reports whether method is listed in the amr claim.
func (c *Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR, method)
}

// ValidateIssuer checks iss; an empty expectation accepts anything.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" || c.Issuer == expected {
		return nil
	}
	return ErrIssuer
}

// ValidateAudience requires at least one expected audience when any are given.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateTimes checks exp and nbf against now with a symmetric leeway.
func (c *Claims) ValidateTimes(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
