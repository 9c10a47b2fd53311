package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("jwtx: invalid token")
	ErrUnknownKID   = errors.New("jwtx: unknown kid")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
)

// Verifier validates a compact JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions are the expectations a KeySetVerifier enforces.
type VerifyOptions struct {
	Issuer   string        // empty accepts any issuer
	Audience []string      // empty skips the audience check
	Leeway   time.Duration // clock skew tolerance for exp/nbf
}

// KeySetVerifier verifies EdDSA and ES256 tokens against a KeySet. The kid
// header selects the key and the key type must match the alg header.
type KeySetVerifier struct {
	keys *KeySet
	opts VerifyOptions
	now  func() time.Time
}

func NewVerifier(keys *KeySet, opts VerifyOptions) *KeySetVerifier {
	return &KeySetVerifier{keys: keys, opts: opts, now: time.Now}
}

// Verify checks signature, issuer, audience and validity window.
func (v *KeySetVerifier) Verify(raw string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmEdDSA, AlgorithmES256}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.opts.Leeway),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(raw, &claims, v.keyFor)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return Claims{}, ErrNotYetValid
	case errors.Is(err, ErrUnknownKID):
		return Claims{}, ErrUnknownKID
	default:
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateTimes(v.now(), v.opts.Leeway); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (v *KeySetVerifier) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("jwtx: missing kid")
	}

	pub, err := v.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
	}

	switch t.Method.Alg() {
	case AlgorithmEdDSA:
		if k, ok := pub.(ed25519.PublicKey); ok {
			return k, nil
		}
	case AlgorithmES256:
		if k, ok := pub.(*ecdsa.PublicKey); ok {
			return k, nil
		}
	}
	return nil, fmt.Errorf("jwtx: key %q does not match alg %s", kid, t.Method.Alg())
}
