package authroles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

var (
	_ ports.RoleMapper   = GroupRoleMapper{}
	_ ports.RoleProvider = StaticRoleProvider{}
	_ ports.RoleProvider = IdentityRoleProvider{}
)

func TestGroupRoleMapper(t *testing.T) {
	m := GroupRoleMapper{AdminGroup: "admins", UserGroup: "users", Extra: map[string]string{"writers": "editor"}}

	assert.Equal(t, []string{"admin", "user"}, m.Map([]string{"admins"}).Sorted())
	assert.Equal(t, []string{"user"}, m.Map([]string{"users"}).Sorted())
	assert.Equal(t, []string{"editor", "user"}, m.Map([]string{"users", "writers"}).Sorted())
	assert.Empty(t, m.Map([]string{"nobody"}))
}

func TestStaticRoleProvider(t *testing.T) {
	p := StaticRoleProvider{Roles: map[string]any{
		"john":  "user",
		"admin": []string{"user", "admin"},
		"bad":   42,
	}}
	ctx := context.Background()

	roles, err := p.UserRoles(ctx, "john")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, roles.Sorted())

	roles, err = p.UserRoles(ctx, domainauth.Identity{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "user"}, roles.Sorted())

	roles, err = p.UserRoles(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, roles)

	_, err = p.UserRoles(ctx, "bad")
	require.Error(t, err)

	roles, err = p.UserRoles(ctx, 12)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestIdentityRoleProvider(t *testing.T) {
	p := IdentityRoleProvider{Next: StaticRoleProvider{Roles: map[string]any{"john": "user"}}}
	ctx := context.Background()

	roles, err := p.UserRoles(ctx, &domainauth.Identity{UserID: "x", Roles: []string{"admin"}})
	require.NoError(t, err)
	assert.True(t, roles.Has("admin"))

	roles, err = p.UserRoles(ctx, "john")
	require.NoError(t, err)
	assert.True(t, roles.Has("user"))
}
