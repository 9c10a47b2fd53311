package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters shared by password and one-time code hashing.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	// ErrMismatch reports that a secret does not match its stored hash.
	ErrMismatch = errors.New("password does not match")

	// ErrHashFormat reports a stored hash that is not a PHC argon2id string.
	ErrHashFormat = errors.New("invalid hash format")
)

// HashPassword returns a PHC-format Argon2id hash of the peppered secret.
// The same routine hashes account passwords and emailed one-time codes.
func HashPassword(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	sum := argon2.IDKey([]byte(secret+GetPepper()), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyPassword checks secret against a PHC argon2id hash in constant time.
// It returns ErrMismatch when the hash is well formed but does not match.
func VerifyPassword(secret, encoded string) error {
	p, err := parsePHC(encoded)
	if err != nil {
		return err
	}

	sum := argon2.IDKey(
		[]byte(secret+GetPepper()),
		p.salt,
		p.iterations,
		p.memory,
		p.parallelism,
		uint32(len(p.hash)), // #nosec G115 -- bounded by the decoded hash length
	)

	if subtle.ConstantTimeCompare(sum, p.hash) != 1 {
		return ErrMismatch
	}
	return nil
}

type phc struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// parsePHC splits "$argon2id$v=19$m=X,t=Y,p=Z$salt$hash".
func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, fmt.Errorf("%w: expected 6 parts", ErrHashFormat)
	}
	if parts[1] != "argon2id" {
		return phc{}, fmt.Errorf("%w: not argon2id", ErrHashFormat)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phc{}, fmt.Errorf("%w: wrong version", ErrHashFormat)
	}

	var p phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return phc{}, fmt.Errorf("%w: parameters: %v", ErrHashFormat, err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phc{}, fmt.Errorf("%w: salt: %v", ErrHashFormat, err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phc{}, fmt.Errorf("%w: hash: %v", ErrHashFormat, err)
	}
	if len(p.hash) == 0 {
		return phc{}, fmt.Errorf("%w: empty hash", ErrHashFormat)
	}

	return p, nil
}
