package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/loginkit/internal/ports"
)

const (
	defaultNoncePrefix = "loginkit:digest:"
	defaultNonceTTL    = 5 * time.Minute
)

var _ ports.NonceStore = (*NonceStore)(nil)

// NonceStore issues Digest nonces and opaques shared by every instance.
// Values expire after the TTL, so stale nonces stop verifying.
type NonceStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NonceStoreOptions configures NonceStore.
type NonceStoreOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewNonceStore returns a NonceStore on client.
func NewNonceStore(client redis.UniversalClient, opts NonceStoreOptions) *NonceStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultNoncePrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultNonceTTL
	}
	return &NonceStore{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

func (s *NonceStore) GenerateNonce(ctx context.Context, _ ports.NonceScope) (string, error) {
	return s.issue(ctx, "nonce:")
}

func (s *NonceStore) VerifyNonce(ctx context.Context, _ ports.NonceScope, nonce string) (bool, error) {
	return s.exists(ctx, "nonce:", nonce)
}

func (s *NonceStore) GenerateOpaque(ctx context.Context, _ ports.NonceScope) (string, error) {
	return s.issue(ctx, "opaque:")
}

func (s *NonceStore) VerifyOpaque(ctx context.Context, _ ports.NonceScope, opaque string) (bool, error) {
	return s.exists(ctx, "opaque:", opaque)
}

func (s *NonceStore) issue(ctx context.Context, kind string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random %s: %w", kind, err)
	}
	v := hex.EncodeToString(b)
	if err := s.client.Set(ctx, s.prefix+kind+v, 1, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store %s: %w", kind, err)
	}
	return v, nil
}

func (s *NonceStore) exists(ctx context.Context, kind, v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.prefix+kind+v).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", kind, err)
	}
	return n == 1, nil
}
