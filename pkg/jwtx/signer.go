package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"fmt"

	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmEdDSA = "EdDSA"
	AlgorithmES256 = "ES256"
)

// Signer signs session tokens with one private key.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSigner loads a PKCS8 PEM private key and picks the algorithm from the
// key type: Ed25519 signs EdDSA, P-256 signs ES256.
func NewSigner(kid string, pemKey []byte) (Signer, error) {
	key, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}

	switch k := key.(type) {
	case ed25519.PrivateKey:
		return &keySigner{
			kid:    kid,
			method: jwt.SigningMethodEdDSA,
			key:    k,
			jwk:    NewEd25519JWK(kid, k.Public().(ed25519.PublicKey)),
		}, nil

	case *ecdsa.PrivateKey:
		if name := k.Curve.Params().Name; name != "P-256" {
			return nil, fmt.Errorf("jwtx: expected P-256 curve, got %s", name)
		}
		return &keySigner{
			kid:    kid,
			method: jwt.SigningMethodES256,
			key:    k,
			jwk:    NewES256JWK(kid, &k.PublicKey),
		}, nil

	default:
		return nil, fmt.Errorf("jwtx: unsupported key type %T", key)
	}
}

func (s *keySigner) Alg() string    { return s.method.Alg() }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

// Sign serialises claims into a compact JWS with the kid header set.
func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}
