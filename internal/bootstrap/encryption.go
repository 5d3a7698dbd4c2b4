package bootstrap

import (
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/target/loginkit/internal/data/cryptoutil"
)

// NewHA1Encryptor returns the encryptor sealing stored Digest HA1 values.
// Without a key it falls back to a no-op encryptor in development and fails
// otherwise.
//
//nolint:ireturn // callers hold the Encryptor interface.
func NewHA1Encryptor(key string, isDev bool, logger *slog.Logger) (cryptoutil.Encryptor, error) {
	if key == "" {
		if !isDev {
			return nil, errors.New("DB_ENCRYPTION_KEY is required outside development")
		}
		logger.Warn("DB_ENCRYPTION_KEY is empty; HA1 values are stored unencrypted")
		return cryptoutil.NoopEncryptor{}, nil
	}
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		raw = cryptoutil.KeyFromSecret(key)
	}
	enc, err := cryptoutil.NewAESGCMEncryptor(raw)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
