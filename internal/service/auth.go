package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

// ErrNoRoleProvider is returned when a role requirement is evaluated without
// a configured RoleProvider.
var ErrNoRoleProvider = errors.New("role provider is not configured")

// ErrFederatedLoginDisabled is returned by BeginLogin and CompleteLogin when
// no AuthProvider is configured.
var ErrFederatedLoginDisabled = errors.New("federated login is not configured")

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Users    ports.UserLoader
	Roles    ports.RoleProvider
	Provider ports.AuthProvider
	Groups   ports.RoleMapper
	Logger   *slog.Logger
}

// AuthService orchestrates user resolution, role authorization and the
// federated login exchange shared by the HTTP guards.
type AuthService struct {
	users    ports.UserLoader
	roles    ports.RoleProvider
	provider ports.AuthProvider
	groups   ports.RoleMapper
	logger   *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    opts.Users,
		roles:    opts.Roles,
		provider: opts.Provider,
		groups:   opts.Groups,
		logger:   logger.With("component", "auth_service"),
	}
}

// HasUserLoader reports whether user ids can be resolved.
func (s *AuthService) HasUserLoader() bool { return s != nil && s.users != nil }

// HasRoleProvider reports whether role requirements can be evaluated.
func (s *AuthService) HasRoleProvider() bool { return s != nil && s.roles != nil }

// FederatedLoginEnabled reports whether an AuthProvider is configured.
func (s *AuthService) FederatedLoginEnabled() bool { return s != nil && s.provider != nil }

// LoadUser resolves userID through the configured UserLoader. A nil principal
// with a nil error means the id is unknown.
func (s *AuthService) LoadUser(ctx context.Context, userID string) (domainauth.Principal, error) {
	if !s.HasUserLoader() {
		return nil, nil
	}
	user, err := s.users.LoadUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %q: %w", userID, err)
	}
	if !domainauth.Present(user) {
		return nil, nil
	}
	return user, nil
}

// Authorize reports whether user satisfies spec. A zero spec always allows.
func (s *AuthService) Authorize(ctx context.Context, spec domainauth.RoleSpec, user domainauth.Principal) (bool, error) {
	if spec.IsZero() {
		return true, nil
	}
	if !s.HasRoleProvider() {
		return false, ErrNoRoleProvider
	}
	roles, err := s.roles.UserRoles(ctx, user)
	if err != nil {
		return false, fmt.Errorf("user roles: %w", err)
	}
	ok := spec.SatisfiedBy(roles)
	if !ok {
		s.logger.DebugContext(ctx, "role check failed", "required", spec.String(), "held", roles.Sorted())
	}
	return ok, nil
}

// BeginLoginResult contains the result of beginning a federated login.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates a federated login and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if !s.FederatedLoginEnabled() {
		return nil, ErrFederatedLoginDisabled
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a federated login.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLogin exchanges the authorization code for an identity and maps
// its provider groups to application roles. The caller logs the identity in.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (domainauth.Identity, error) {
	if !s.FederatedLoginEnabled() {
		return domainauth.Identity{}, ErrFederatedLoginDisabled
	}
	if input.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if input.State == "" {
		return domainauth.Identity{}, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	})
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	if identity.UserID == "" {
		return domainauth.Identity{}, errors.New("identity provider returned no user id")
	}

	if s.groups != nil {
		identity.Roles = s.groups.Map(identity.Groups).Sorted()
	}

	s.logger.InfoContext(ctx, "federated login completed", "user_id", identity.UserID, "roles", identity.Roles)
	return identity, nil
}
