package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

type cachedUser struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func countingLoader(calls *int, users map[string]*cachedUser) ports.UserLoaderFunc {
	return func(_ context.Context, id string) (domainauth.Principal, error) {
		*calls++
		if u, ok := users[id]; ok {
			return u, nil
		}
		return nil, nil
	}
}

func TestUserCache_ReadThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	calls := 0
	next := countingLoader(&calls, map[string]*cachedUser{"1": {ID: "1", Roles: []string{"admin"}}})
	cache := NewUserCache[cachedUser](client, next, UserCacheOptions{TTL: time.Minute})
	ctx := context.Background()

	first, err := cache.LoadUser(ctx, "1")
	require.NoError(t, err)
	second, err := cache.LoadUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("loginkit:user:1"))

	mr.FastForward(2 * time.Minute)
	_, err = cache.LoadUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestUserCache_MissesAreNotCached(t *testing.T) {
	mr, client := setupTestRedis(t)
	calls := 0
	cache := NewUserCache[cachedUser](client, countingLoader(&calls, nil), UserCacheOptions{})

	for range 2 {
		u, err := cache.LoadUser(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, u)
	}
	assert.Equal(t, 2, calls)
	assert.False(t, mr.Exists("loginkit:user:ghost"))
}

func TestUserCache_Invalidate(t *testing.T) {
	_, client := setupTestRedis(t)
	calls := 0
	next := countingLoader(&calls, map[string]*cachedUser{"1": {ID: "1"}})
	cache := NewUserCache[cachedUser](client, next, UserCacheOptions{})
	ctx := context.Background()

	_, err := cache.LoadUser(ctx, "1")
	require.NoError(t, err)
	removed, err := cache.Invalidate(ctx, "1")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = cache.LoadUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestUserCache_FallsBackWhenRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	calls := 0
	next := countingLoader(&calls, map[string]*cachedUser{"1": {ID: "1"}})
	cache := NewUserCache[cachedUser](client, next, UserCacheOptions{})
	mr.SetError("ERR unavailable")

	u, err := cache.LoadUser(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, &cachedUser{ID: "1"}, u)
}

func TestUserCache_LoaderError(t *testing.T) {
	_, client := setupTestRedis(t)
	boom := errors.New("db down")
	cache := NewUserCache[cachedUser](client, ports.UserLoaderFunc(func(context.Context, string) (domainauth.Principal, error) {
		return nil, boom
	}), UserCacheOptions{})
	_, err := cache.LoadUser(context.Background(), "1")
	require.ErrorIs(t, err, boom)
}
