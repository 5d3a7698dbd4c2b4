package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider     = (*MockAuthProvider)(nil)
	_ ports.PasswordVerifier = (*Directory)(nil)
	_ ports.TokenVerifier    = (*Directory)(nil)
	_ ports.PasswordStore    = (*Directory)(nil)
	_ ports.UserLoader       = (*Directory)(nil)
	_ ports.RoleProvider     = (*Directory)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-user-1",
			FirstName: "Mock",
			LastName:  "User",
			Email:     "mock.user@example.com",
			Groups:    []string{"users"},
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.callCount++
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	return authURL, fmt.Sprintf("state-%d", m.callCount), fmt.Sprintf("nonce-%d", m.callCount), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// User is the principal handed out by Directory.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Directory is an in-memory user table implementing the credential ports.
// It counts LoadUser calls so tests can assert caching.
type Directory struct {
	mu        sync.Mutex
	users     map[string]*User
	passwords map[string]string
	tokens    map[string]string
	loads     int

	// LoadErr, when set, is returned by LoadUser.
	LoadErr error
	// RolesErr, when set, is returned by UserRoles.
	RolesErr error
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		users:     map[string]*User{},
		passwords: map[string]string{},
		tokens:    map[string]string{},
	}
}

// Add registers a user with a password (plaintext or HA1) and roles.
func (d *Directory) Add(id, name, password string, roles ...string) *User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &User{ID: id, Name: name, Roles: roles}
	d.users[id] = u
	d.users[name] = u
	d.passwords[name] = password
	return u
}

// AddToken maps a bearer token to a user name.
func (d *Directory) AddToken(token, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[token] = name
}

// Loads returns how many times LoadUser ran.
func (d *Directory) Loads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loads
}

func (d *Directory) VerifyPassword(_ context.Context, username, password string) (domainauth.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	want, ok := d.passwords[username]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return nil, nil
	}
	return d.users[username], nil
}

func (d *Directory) VerifyToken(_ context.Context, token string) (domainauth.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.tokens[token]
	if !ok {
		return nil, nil
	}
	return d.users[name], nil
}

func (d *Directory) LookupPassword(_ context.Context, username string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pw, ok := d.passwords[username]
	return pw, ok, nil
}

func (d *Directory) LoadUser(_ context.Context, userID string) (domainauth.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads++
	if d.LoadErr != nil {
		return nil, d.LoadErr
	}
	u, ok := d.users[userID]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (d *Directory) UserRoles(_ context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	if d.RolesErr != nil {
		return nil, d.RolesErr
	}
	u, ok := user.(*User)
	if !ok || u == nil {
		return domainauth.RoleSet{}, nil
	}
	return domainauth.RolesOf(u.Roles...), nil
}
