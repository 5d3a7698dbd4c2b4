package authn

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"

	"github.com/target/loginkit/internal/ports"
)

// Session keys used by SessionNonceStore.
const (
	sessionNonceKey  = "_digest_nonce"
	sessionOpaqueKey = "_digest_opaque"
)

// SessionNonceStore keeps the last issued nonce and opaque in the client's
// session, so a value only verifies for the session that received it.
type SessionNonceStore struct{}

var _ ports.NonceStore = SessionNonceStore{}

func (SessionNonceStore) GenerateNonce(_ context.Context, scope ports.NonceScope) (string, error) {
	return issue(scope, sessionNonceKey)
}

func (SessionNonceStore) VerifyNonce(_ context.Context, scope ports.NonceScope, nonce string) (bool, error) {
	return matches(scope, sessionNonceKey, nonce), nil
}

func (SessionNonceStore) GenerateOpaque(_ context.Context, scope ports.NonceScope) (string, error) {
	return issue(scope, sessionOpaqueKey)
}

func (SessionNonceStore) VerifyOpaque(_ context.Context, scope ports.NonceScope, opaque string) (bool, error) {
	return matches(scope, sessionOpaqueKey, opaque), nil
}

// RandomHex returns 2n lowercase hex characters from crypto/rand.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func issue(scope ports.NonceScope, key string) (string, error) {
	v, err := RandomHex(16)
	if err != nil {
		return "", err
	}
	scope.Set(key, v)
	return v, nil
}

func matches(scope ports.NonceScope, key, got string) bool {
	want, ok := scope.Get(key)
	if !ok || want == "" {
		return false
	}
	return hmac.Equal([]byte(want), []byte(got))
}
