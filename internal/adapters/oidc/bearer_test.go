package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/loginkit/internal/domain/auth"
)

const testIssuer = "https://idp.example.com"

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	obj, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := obj.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func newTestBearer(t *testing.T, key *rsa.PrivateKey, now time.Time) *BearerVerifier {
	t.Helper()
	v, err := NewBearerVerifier(context.Background(), BearerConfig{
		Issuer:     testIssuer,
		Audience:   "loginkit",
		PublicKeys: []crypto.PublicKey{&key.PublicKey},
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return v
}

func TestBearerVerifier_ValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)
	v := newTestBearer(t, key, now)

	raw := signToken(t, key, map[string]any{
		"iss":   testIssuer,
		"aud":   "loginkit",
		"sub":   "user-9",
		"email": "nine@example.com",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"roles": []string{"admin"},
	})

	principal, err := v.VerifyToken(context.Background(), raw)
	require.NoError(t, err)
	id, ok := principal.(domainauth.Identity)
	require.True(t, ok)
	assert.Equal(t, "user-9", id.UserID)
	assert.Equal(t, "nine@example.com", id.Email)
	assert.Equal(t, now.Add(time.Hour).Unix(), id.ExpiresAt.Unix())

	roles, err := v.UserRoles(context.Background(), principal)
	require.NoError(t, err)
	assert.True(t, roles.Has("admin"))
}

func TestBearerVerifier_RejectsBadTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)
	v := newTestBearer(t, key, now)

	base := func() map[string]any {
		return map[string]any{
			"iss": testIssuer,
			"aud": "loginkit",
			"sub": "user-9",
			"exp": now.Add(time.Hour).Unix(),
		}
	}
	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong key", token: signToken(t, other, base())},
		{name: "expired", token: func() string {
			c := base()
			c["exp"] = now.Add(-time.Minute).Unix()
			return signToken(t, key, c)
		}()},
		{name: "wrong issuer", token: func() string {
			c := base()
			c["iss"] = "https://evil.example.com"
			return signToken(t, key, c)
		}()},
		{name: "wrong audience", token: func() string {
			c := base()
			c["aud"] = "someone-else"
			return signToken(t, key, c)
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := v.VerifyToken(context.Background(), tt.token)
			require.NoError(t, err)
			assert.Nil(t, principal)
		})
	}
}

func TestNewBearerVerifier_RequiresIssuer(t *testing.T) {
	_, err := NewBearerVerifier(context.Background(), BearerConfig{})
	require.Error(t, err)
}
