package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/loginkit/internal/domain/auth"
)

func TestNonceStore(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewNonceStore(client, NonceStoreOptions{TTL: time.Minute})
	ctx := context.Background()
	scope := domainauth.NewSession("", 0)

	nonce, err := store.GenerateNonce(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, nonce, 32)
	opaque, err := store.GenerateOpaque(ctx, scope)
	require.NoError(t, err)

	ok, err := store.VerifyNonce(ctx, scope, nonce)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.VerifyOpaque(ctx, nil, opaque)
	require.NoError(t, err)
	assert.True(t, ok, "verification does not depend on the caller's scope")

	ok, _ = store.VerifyOpaque(ctx, scope, nonce)
	assert.False(t, ok, "nonces and opaques live in separate namespaces")
	ok, _ = store.VerifyNonce(ctx, scope, "")
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = store.VerifyNonce(ctx, scope, nonce)
	require.NoError(t, err)
	assert.False(t, ok, "stale nonce")
}
