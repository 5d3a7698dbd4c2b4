package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

var (
	_ ports.IdentityStore = (*IdentityStore)(nil)
	_ ports.UserLoader    = (*IdentityStore)(nil)
)

type identityRecord struct {
	id        domainauth.Identity
	expiresAt time.Time
}

// IdentityStore keeps federated identities in process memory.
type IdentityStore struct {
	mu      sync.RWMutex
	records map[string]identityRecord
	now     func() time.Time
}

// NewIdentityStore returns an empty IdentityStore.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{records: map[string]identityRecord{}, now: time.Now}
}

func (s *IdentityStore) SaveIdentity(_ context.Context, id domainauth.Identity, ttl time.Duration) error {
	if id.UserID == "" {
		return errors.New("identity has no user id")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	id.Groups = append([]string(nil), id.Groups...)
	id.Roles = append([]string(nil), id.Roles...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id.UserID] = identityRecord{id: id, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *IdentityStore) DeleteIdentity(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

// LoadUser returns the stored Identity, or nil when unknown or expired.
func (s *IdentityStore) LoadUser(_ context.Context, userID string) (domainauth.Principal, error) {
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if !ok || s.now().After(rec.expiresAt) {
		return nil, nil
	}
	return rec.id, nil
}
