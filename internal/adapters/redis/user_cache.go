package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

const (
	defaultUserCachePrefix = "loginkit:user:"
	defaultUserCacheTTL    = 30 * time.Second
)

// UserCacheOptions configures UserCache.
type UserCacheOptions struct {
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

// UserCache is a read-through cache in front of a UserLoader whose users
// round-trip through JSON as *T. Redis failures fall back to the loader.
// Unknown users are not cached.
type UserCache[T any] struct {
	next   ports.UserLoader
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.UserLoader = (*UserCache[struct{}])(nil)

// NewUserCache wraps next with a cache on client.
func NewUserCache[T any](client redis.UniversalClient, next ports.UserLoader, opts UserCacheOptions) *UserCache[T] {
	if opts.Prefix == "" {
		opts.Prefix = defaultUserCachePrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultUserCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &UserCache[T]{
		next:   next,
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		logger: opts.Logger.With("component", "user_cache"),
	}
}

func (c *UserCache[T]) LoadUser(ctx context.Context, userID string) (domainauth.Principal, error) {
	key := c.prefix + userID
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var user T
		if jsonErr := json.Unmarshal(raw, &user); jsonErr == nil {
			return &user, nil
		}
		c.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key)
		_ = c.client.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "user cache read failed", "error", err)
	}

	user, err := c.next.LoadUser(ctx, userID)
	if err != nil || !domainauth.Present(user) {
		return user, err
	}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("marshal cached user: %w", err)
	}
	if err := c.client.SetArgs(ctx, key, data, redis.SetArgs{TTL: c.ttl}).Err(); err != nil {
		c.logger.WarnContext(ctx, "user cache write failed", "error", err)
	}
	return user, nil
}

// Invalidate drops userID so the next load reads through.
func (c *UserCache[T]) Invalidate(ctx context.Context, userID string) (bool, error) {
	n, err := c.client.Del(ctx, c.prefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}
