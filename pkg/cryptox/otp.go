package cryptox

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// otpSecretSize matches the RFC 4226 recommended 160-bit shared secret.
const otpSecretSize = 20

// GenerateNumericCode returns a one-time numeric code with the given number
// of digits (6 or 8). Each code is the HOTP value of a fresh random secret at
// counter zero, so codes are independent of one another and never derivable
// from anything stored.
func GenerateNumericCode(digits int) (string, error) {
	var d otp.Digits
	switch digits {
	case 6:
		d = otp.DigitsSix
	case 8:
		d = otp.DigitsEight
	default:
		return "", fmt.Errorf("cryptox: unsupported code length %d", digits)
	}

	secret := make([]byte, otpSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("cryptox: failed to generate code secret: %w", err)
	}

	code, err := hotp.GenerateCodeCustom(
		base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret),
		0,
		hotp.ValidateOpts{Digits: d, Algorithm: otp.AlgorithmSHA1},
	)
	if err != nil {
		return "", fmt.Errorf("cryptox: failed to derive code: %w", err)
	}
	return code, nil
}
