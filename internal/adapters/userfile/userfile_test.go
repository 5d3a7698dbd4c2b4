package userfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/loginkit/internal/domain/auth"
)

func testDirectory(t *testing.T, opts Options) *Directory {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	doc := `
users:
  - id: "1"
    username: john
    password: hello
    roles: user
    tokens: [john-token]
  - id: "2"
    username: susan
    password: "` + hash + `"
    ha1: 0123456789abcdef0123456789abcdef
    roles: [admin, user]
  - username: guest
`
	d, err := Parse([]byte(doc), opts)
	require.NoError(t, err)
	return d
}

func TestParse_RolesStringOrList(t *testing.T) {
	d := testDirectory(t, Options{})
	assert.Equal(t, 3, d.Len())
	ctx := context.Background()

	john, err := d.LoadUser(ctx, "1")
	require.NoError(t, err)
	roles, err := d.UserRoles(ctx, john)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, roles.Sorted())

	susan, err := d.LoadUser(ctx, "2")
	require.NoError(t, err)
	roles, err = d.UserRoles(ctx, susan)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "user"}, roles.Sorted())

	guest, err := d.LoadUser(ctx, "guest")
	require.NoError(t, err, "id defaults to username")
	roles, err = d.UserRoles(ctx, guest)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestDirectory_VerifyPassword(t *testing.T) {
	d := testDirectory(t, Options{})
	ctx := context.Background()

	tests := []struct {
		user, pass string
		ok         bool
	}{
		{"john", "hello", true},
		{"john", "nope", false},
		{"susan", "s3cret", true},
		{"susan", "wrong", false},
		{"guest", "", false},
		{"nobody", "x", false},
	}
	for _, tt := range tests {
		got, err := d.VerifyPassword(ctx, tt.user, tt.pass)
		require.NoError(t, err)
		assert.Equal(t, tt.ok, domainauth.Present(got), "%s/%s", tt.user, tt.pass)
	}
}

func TestDirectory_LookupPassword(t *testing.T) {
	ctx := context.Background()
	d := testDirectory(t, Options{})

	pw, ok, err := d.LookupPassword(ctx, "john")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", pw)

	_, ok, _ = d.LookupPassword(ctx, "susan")
	assert.False(t, ok, "bcrypt hashes cannot serve digest")

	ha1 := testDirectory(t, Options{DigestHA1: true})
	pw, ok, _ = ha1.LookupPassword(ctx, "susan")
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", pw)
	_, ok, _ = ha1.LookupPassword(ctx, "john")
	assert.False(t, ok)
}

func TestDirectory_VerifyToken(t *testing.T) {
	d := testDirectory(t, Options{})
	u, err := d.VerifyToken(context.Background(), "john-token")
	require.NoError(t, err)
	require.IsType(t, &User{}, u)
	assert.Equal(t, "john", u.(*User).Username)

	u, err = d.VerifyToken(context.Background(), "other")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("users:\n  - id: x\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username is required")

	_, err = Parse([]byte("users:\n  - username: a\n  - username: a\n"), Options{})
	require.Error(t, err)

	_, err = Parse([]byte("users:\n  - username: a\n    roles: {x: y}\n"), Options{})
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - username: a\n    password: b\n"), 0o600))
	d, err := Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), Options{})
	require.Error(t, err)
}
