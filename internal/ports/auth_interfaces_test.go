package ports_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	mocks "github.com/target/loginkit/internal/mocks/auth"
	"github.com/target/loginkit/internal/ports"
)

// This test only verifies that our doubles conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthProvider = (*mocks.MockAuthProvider)(nil)
	var _ ports.UserLoader = (*mocks.Directory)(nil)
	var _ ports.RoleProvider = (*mocks.Directory)(nil)
	var _ ports.NonceScope = (*domainauth.Session)(nil)
}

func TestFuncAdapters(t *testing.T) {
	ctx := context.Background()

	var tv ports.TokenVerifier = ports.TokenVerifierFunc(func(_ context.Context, token string) (domainauth.Principal, error) {
		if token == "valid_token" {
			return "admin", nil
		}
		return nil, nil
	})
	p, err := tv.VerifyToken(ctx, "valid_token")
	require.NoError(t, err)
	assert.Equal(t, "admin", p)

	var rp ports.RoleProvider = ports.RoleProviderFunc(func(_ context.Context, _ domainauth.Principal) (domainauth.RoleSet, error) {
		return domainauth.RolesOf("user"), nil
	})
	roles, err := rp.UserRoles(ctx, "john")
	require.NoError(t, err)
	assert.True(t, roles.Has("user"))
}
