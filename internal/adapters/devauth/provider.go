package devauth

// Package devauth provides a config-driven identity for local development
// (AUTH_MODE=mock). One fixed user can log in through every backend.

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

// Config controls the dev identity.
// UserID and Email are required; the rest may be empty.
type Config struct {
	UserID string
	Email  string
	Groups []string
	// Roles are granted directly; RoleMapper output is added on top.
	Roles []string
	// Token is accepted by the Token backend when non-empty.
	Token string
	// Password is accepted by the Basic and Digest backends when non-empty.
	Password        string
	SessionDuration time.Duration // default 8h when zero
	RoleMapper      ports.RoleMapper
}

// Provider is a single-user directory. It short-circuits the federated flow
// by redirecting back to the local callback with generated state and nonce.
type Provider struct {
	identity        domainauth.Identity
	token           string
	password        string
	sessionDuration time.Duration
}

var (
	_ ports.AuthProvider     = (*Provider)(nil)
	_ ports.TokenVerifier    = (*Provider)(nil)
	_ ports.PasswordVerifier = (*Provider)(nil)
	_ ports.PasswordStore    = (*Provider)(nil)
	_ ports.UserLoader       = (*Provider)(nil)
	_ ports.RoleProvider     = (*Provider)(nil)
)

// NewProvider constructs a dev provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	roles := domainauth.RolesOf(cfg.Roles...)
	if cfg.RoleMapper != nil {
		for r := range cfg.RoleMapper.Map(cfg.Groups) {
			roles[r] = struct{}{}
		}
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID:    cfg.UserID,
			Email:     cfg.Email,
			Groups:    append([]string(nil), cfg.Groups...),
			Roles:     roles.Sorted(),
			ExpiresAt: time.Now().Add(dur),
		},
		token:           cfg.Token,
		password:        cfg.Password,
		sessionDuration: dur,
	}, nil
}

// Identity returns the configured identity with a refreshed expiry.
func (p *Provider) Identity() domainauth.Identity {
	id := p.identity
	id.ExpiresAt = time.Now().Add(p.sessionDuration)
	return id
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	return "/auth/callback?code=dev&state=" + state, state, nonce, nil
}

// Exchange ignores the code and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	return p.Identity(), nil
}

// VerifyToken accepts the configured token.
func (p *Provider) VerifyToken(_ context.Context, token string) (domainauth.Principal, error) {
	if p.token == "" || !equal(token, p.token) {
		return nil, nil
	}
	return p.Identity(), nil
}

// VerifyPassword accepts the user id or email with the configured password.
func (p *Provider) VerifyPassword(_ context.Context, username, password string) (domainauth.Principal, error) {
	if !p.matchesUser(username) || p.password == "" || !equal(password, p.password) {
		return nil, nil
	}
	return p.Identity(), nil
}

// LookupPassword returns the plaintext password for Digest.
func (p *Provider) LookupPassword(_ context.Context, username string) (string, bool, error) {
	if !p.matchesUser(username) || p.password == "" {
		return "", false, nil
	}
	return p.password, true, nil
}

// LoadUser returns the dev identity for its id.
func (p *Provider) LoadUser(_ context.Context, userID string) (domainauth.Principal, error) {
	if userID != p.identity.UserID {
		return nil, nil
	}
	return p.Identity(), nil
}

// UserRoles returns the dev identity's roles.
func (p *Provider) UserRoles(_ context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	id, ok := user.(domainauth.Identity)
	if !ok || id.UserID != p.identity.UserID {
		return domainauth.RoleSet{}, nil
	}
	return domainauth.RolesOf(p.identity.Roles...), nil
}

func (p *Provider) matchesUser(username string) bool {
	return username == p.identity.UserID || username == p.identity.Email
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	for len(s) < n {
		extra := make([]byte, 3)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:n], nil
}
