package jwtx

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
)

// KeyManager owns the signing keys of one service instance together with
// the KeySet and Verifier that accept them.
type KeyManager struct {
	KeySet   *KeySet
	Verifier Verifier

	algorithm string

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures NewKeyManager.
type KeyManagerOptions struct {
	// Algorithm for generated keys: EdDSA or ES256. Ignored for key files,
	// whose algorithm follows the key type.
	Algorithm string

	Issuer   string
	Audience []string

	// NumKeys is the number of ephemeral keys to generate (1-10, default 3).
	NumKeys int

	// KeyFiles are PKCS8 PEM private keys to load instead of generating
	// ephemeral ones. Tokens signed with file keys survive restarts.
	KeyFiles []string
}

// NewKeyManager loads KeyFiles when present, otherwise generates NumKeys
// ephemeral keys that live only in memory.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	var (
		signers []Signer
		err     error
	)
	if len(opts.KeyFiles) > 0 {
		signers, err = loadSigners(opts.KeyFiles)
	} else {
		signers, err = generateSigners(opts.Algorithm, opts.NumKeys)
	}
	if err != nil {
		return nil, err
	}

	keyset := NewKeySet()
	for _, s := range signers {
		if err := keyset.AddSigner(s); err != nil {
			return nil, fmt.Errorf("jwtx: failed to publish key %s: %w", s.KID(), err)
		}
	}

	return &KeyManager{
		KeySet:    keyset,
		Verifier:  NewVerifier(keyset, VerifyOptions{Issuer: opts.Issuer, Audience: opts.Audience}),
		algorithm: signers[0].Alg(),
		signers:   signers,
	}, nil
}

func generateSigners(algorithm string, n int) ([]Signer, error) {
	switch {
	case n <= 0:
		n = 3
	case n > 10:
		n = 10
	}

	var gen func() ([]byte, error)
	switch algorithm {
	case AlgorithmEdDSA, "":
		gen = cryptox.GenerateEd25519Key
	case AlgorithmES256:
		gen = cryptox.GenerateES256Key
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: EdDSA, ES256)", algorithm)
	}

	signers := make([]Signer, 0, n)
	for i := range n {
		pemKey, err := gen()
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate key %d: %w", i+1, err)
		}
		kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate key ID: %w", err)
		}
		s, err := NewSigner("agencydesk-"+kid, pemKey)
		if err != nil {
			return nil, err
		}
		signers = append(signers, s)
	}
	return signers, nil
}

// loadSigners derives each kid from the public key so that every instance
// loading the same file publishes the same kid.
func loadSigners(files []string) ([]Signer, error) {
	signers := make([]Signer, 0, len(files))
	for _, f := range files {
		raw, key, err := cryptox.ReadPrivateKeyFile(f)
		if err != nil {
			return nil, fmt.Errorf("jwtx: %w", err)
		}
		pub, err := publicDER(key)
		if err != nil {
			return nil, err
		}
		s, err := NewSigner("agencydesk-"+cryptox.FingerprintToken(string(pub))[:16], raw)
		if err != nil {
			return nil, fmt.Errorf("jwtx: %s: %w", f, err)
		}
		signers = append(signers, s)
	}
	return signers, nil
}

func publicDER(key any) ([]byte, error) {
	k, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("jwtx: unsupported key type %T", key)
	}
	return x509.MarshalPKIXPublicKey(k.Public())
}

// Signer returns one of the loaded signers at random so that verifiers
// exercise every published key.
func (m *KeyManager) Signer() Signer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signers[rand.IntN(len(m.signers))]
}

// Algorithm returns the algorithm of the loaded keys.
func (m *KeyManager) Algorithm() string { return m.algorithm }

func (m *KeyManager) NumSigners() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signers)
}

// IsReady reports whether keys are loaded and published.
func (m *KeyManager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signers) > 0 && m.KeySet.IsReady()
}
