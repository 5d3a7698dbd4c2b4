package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/loginkit/internal/data/cryptoutil"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	apperrors "github.com/target/loginkit/internal/errors"
	"github.com/target/loginkit/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserRepo(t *testing.T) *UserRepo {
	t.Helper()
	db := testutil.SetupTestDB(t)
	enc, err := cryptoutil.NewAESGCMEncryptor(cryptoutil.KeyFromSecret("test"))
	require.NoError(t, err)
	return NewUserRepo(db, UserRepoConfig{
		Encryptor:  enc,
		BcryptCost: bcrypt.MinCost,
		Now:        testutil.FixedTimeFunc(testutil.TestTime()),
	})
}

func TestUserCreateRequest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   UserCreateRequest
		field string
	}{
		{"missing username", UserCreateRequest{Password: "longenough"}, "username"},
		{"colon in username", UserCreateRequest{Username: "a:b", Password: "longenough"}, "username"},
		{"short password", UserCreateRequest{Username: "john", Password: "short"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
	assert.NoError(t, UserCreateRequest{Username: "john", Password: "longenough"}.Validate())
}

func TestRoleList_Scan(t *testing.T) {
	var l roleList
	require.NoError(t, l.Scan(`["admin","user"]`))
	assert.Equal(t, roleList{"admin", "user"}, l)
	require.NoError(t, l.Scan([]byte(`[]`)))
	assert.Equal(t, roleList{}, l)
	require.NoError(t, l.Scan(nil))
	assert.Equal(t, roleList{}, l)
	assert.Error(t, l.Scan(42))
}

func TestUserRepo_CreateAndAuthenticate(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()

	u, err := repo.Create(ctx, UserCreateRequest{
		Username: "john", Email: "john@example.com", Password: "hello-world",
		Roles: []string{"user"}, HA1: "939e7578ed9e3c518a452acee763bce9",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, []string{"user"}, u.Roles)
	assert.True(t, u.CreatedAt.Equal(testutil.TestTime()))

	_, err = repo.Create(ctx, UserCreateRequest{Username: "JOHN", Password: "another-one"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	p, err := repo.VerifyPassword(ctx, "John", "hello-world")
	require.NoError(t, err)
	require.True(t, domainauth.Present(p))
	assert.Equal(t, u.ID, p.(*User).ID)

	p, err = repo.VerifyPassword(ctx, "john", "wrong")
	require.NoError(t, err)
	assert.Nil(t, p)

	ha1, ok, err := repo.LookupPassword(ctx, "john")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "939e7578ed9e3c518a452acee763bce9", ha1)

	loaded, err := repo.LoadUser(ctx, u.ID)
	require.NoError(t, err)
	roles, err := repo.UserRoles(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, roles.Sorted())

	missing, err := repo.LoadUser(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepo_DisabledUsersCannotAuthenticate(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()
	u, err := repo.Create(ctx, UserCreateRequest{Username: "susan", Password: "bye-bye-bye"})
	require.NoError(t, err)
	token, err := repo.IssueToken(ctx, u.ID, "ci")
	require.NoError(t, err)

	_, err = repo.SetDisabled(ctx, u.ID, true)
	require.NoError(t, err)

	p, err := repo.VerifyPassword(ctx, "susan", "bye-bye-bye")
	require.NoError(t, err)
	assert.Nil(t, p)
	p, err = repo.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, p)
	p, err = repo.LoadUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = repo.IssueToken(ctx, u.ID, "again")
	assert.True(t, apperrors.IsValidation(err))
}

func TestUserRepo_Tokens(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()
	u, err := repo.Create(ctx, UserCreateRequest{Username: "bot", Password: "robot-pass", Roles: []string{"api"}})
	require.NoError(t, err)

	token, err := repo.IssueToken(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Len(t, token, 64)

	p, err := repo.VerifyToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "bot", p.(*User).Username)

	n, err := repo.RevokeTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	p, err = repo.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = repo.IssueToken(ctx, "00000000-0000-0000-0000-000000000000", "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUserRepo_ListRolesDelete(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := repo.Create(ctx, UserCreateRequest{Username: name, Password: "password-" + name})
		require.NoError(t, err)
	}
	list, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, "bob", list[1].Username)

	updated, err := repo.SetRoles(ctx, list[0].ID, []string{"admin", "user"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "user"}, updated.Roles)

	ok, err := repo.Delete(ctx, list[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Delete(ctx, list[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.GetByID(ctx, list[0].ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepo_ImportUsers(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("imported"), bcrypt.MinCost)
	require.NoError(t, err)

	n, err := repo.ImportUsers(ctx, []UserImport{
		{Username: "dave", PasswordHash: string(hash), Roles: []string{"user"}},
		{Username: "erin", HA1: "0123456789abcdef0123456789abcdef"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	p, err := repo.VerifyPassword(ctx, "dave", "imported")
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, ok, err := repo.LookupPassword(ctx, "erin")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.ImportUsers(ctx, []UserImport{{Username: "Dave"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}
