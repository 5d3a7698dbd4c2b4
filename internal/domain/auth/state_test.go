package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUser struct{ Name string }

func TestPresent(t *testing.T) {
	var nilUser *testUser
	assert.False(t, Present(nil))
	assert.False(t, Present(nilUser))
	assert.False(t, Present(""))
	assert.False(t, Present(map[string]any(nil)))
	assert.True(t, Present(&testUser{Name: "john"}))
	assert.True(t, Present("john"))
	assert.True(t, Present(Identity{UserID: "1"}))
}

func TestStateContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	ctx, st := EnsureState(context.Background())
	_, ok = UserFromContext(ctx)
	assert.False(t, ok)

	st.SetUser("john")
	user, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "john", user)

	same, st2 := EnsureState(ctx)
	assert.Same(t, st, st2)
	assert.Equal(t, ctx, same)

	st.ClearUser()
	_, ok = UserFromContext(ctx)
	assert.False(t, ok)
}

func TestSession_Modified(t *testing.T) {
	s := NewSession("abc", 0)
	assert.False(t, s.Modified())

	s.Set(UserIDKey, "1")
	assert.True(t, s.Modified())
	s.MarkClean()

	v, ok := s.Pop(UserIDKey)
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.True(t, s.Modified())

	s.MarkClean()
	_, ok = s.Pop(UserIDKey)
	assert.False(t, ok)
	assert.False(t, s.Modified())
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, 401, Unauthenticated.Status())
	assert.Equal(t, 403, Unauthorized.Status())
	assert.Equal(t, "unauthorized", Unauthorized.String())
	var err error = NewAuthenticationError("Invalid token")
	assert.EqualError(t, err, "Invalid token")
}
