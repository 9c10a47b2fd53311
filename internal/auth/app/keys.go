package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
)

// InitAuthKeys builds the KeyManager that signs session tokens.
//
// Key sources:
//   - AUTH_SIGNING_KEY_FILE set: PKCS8 PEM keys are loaded from disk and
//     tokens survive restarts.
//   - otherwise: AUTH_NUM_KEYS ephemeral keys are generated on startup and
//     every outstanding session token becomes invalid when the service
//     restarts.
//
// Supported algorithms: EdDSA, ES256
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	files := cfg.SigningKeyFiles()

	keyManager, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Audience:  cfg.AudienceList(),
		NumKeys:   cfg.NumKeys,
		KeyFiles:  files,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	if len(files) > 0 {
		logger.Info("signing keys loaded from files",
			"algorithm", keyManager.Algorithm(),
			"num_keys", keyManager.NumSigners(),
			"issuer", cfg.Issuer,
		)
		return keyManager, nil
	}

	logger.Info("generated ephemeral signing keys",
		"algorithm", keyManager.Algorithm(),
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)
	logger.Warn("all existing session tokens are now invalid due to key rotation on startup")
	return keyManager, nil
}
