package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

const defaultIdentityPrefix = "loginkit:identity:"

var (
	_ ports.IdentityStore = (*IdentityStore)(nil)
	_ ports.UserLoader    = (*IdentityStore)(nil)
)

// IdentityStore remembers identities returned by a federated login so the
// session LoginManager can load them by id on later requests.
type IdentityStore struct {
	client redis.UniversalClient
	prefix string
}

// NewIdentityStore returns an IdentityStore on client.
func NewIdentityStore(client redis.UniversalClient, prefix string) *IdentityStore {
	if prefix == "" {
		prefix = defaultIdentityPrefix
	}
	return &IdentityStore{client: client, prefix: prefix}
}

// SaveIdentity stores id for ttl. A zero ExpiresAt on id keeps ttl as is.
func (s *IdentityStore) SaveIdentity(ctx context.Context, id domainauth.Identity, ttl time.Duration) error {
	if id.UserID == "" {
		return errors.New("identity has no user id")
	}
	if !id.ExpiresAt.IsZero() {
		if until := time.Until(id.ExpiresAt); until < ttl || ttl <= 0 {
			ttl = until
		}
	}
	if ttl <= 0 {
		return errors.New("identity is expired")
	}
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return s.client.Set(ctx, s.prefix+id.UserID, data, ttl).Err()
}

// LoadUser returns the stored Identity, or nil when unknown.
func (s *IdentityStore) LoadUser(ctx context.Context, userID string) (domainauth.Principal, error) {
	data, err := s.client.Get(ctx, s.prefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get identity: %w", err)
	}
	var id domainauth.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}
	return id, nil
}

// DeleteIdentity forgets userID.
func (s *IdentityStore) DeleteIdentity(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.prefix+userID).Err()
}
