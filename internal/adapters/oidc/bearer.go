package oidc

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

var (
	_ ports.TokenVerifier = (*BearerVerifier)(nil)
	_ ports.RoleProvider  = (*BearerVerifier)(nil)
)

// BearerConfig configures a BearerVerifier.
type BearerConfig struct {
	// Issuer is the expected "iss" claim. With no PublicKeys it is also
	// used for discovery.
	Issuer string
	// Audience is the expected "aud" claim. Empty skips the audience check.
	Audience string
	// PublicKeys pins the signing keys instead of fetching the issuer's JWKS.
	PublicKeys []crypto.PublicKey
	// Algorithms restricts accepted signing algorithms. Defaults to RS256.
	Algorithms []string
	Claims     ClaimMapping
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// BearerVerifier validates JWT access tokens and maps their claims to an
// Identity. It also serves the roles carried in the token.
type BearerVerifier struct {
	verifier *gooidc.IDTokenVerifier
	claims   ClaimMapping
	logger   *slog.Logger
}

// NewBearerVerifier builds a verifier from a pinned key set or discovery.
func NewBearerVerifier(ctx context.Context, cfg BearerConfig) (*BearerVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	claims := cfg.Claims.withDefaults()
	if err := claims.Validate(); err != nil {
		return nil, err
	}
	vcfg := &gooidc.Config{
		ClientID:             cfg.Audience,
		SkipClientIDCheck:    cfg.Audience == "",
		SupportedSigningAlgs: cfg.Algorithms,
		Now:                  cfg.Now,
	}

	var verifier *gooidc.IDTokenVerifier
	if len(cfg.PublicKeys) > 0 {
		verifier = gooidc.NewVerifier(cfg.Issuer, &gooidc.StaticKeySet{PublicKeys: cfg.PublicKeys}, vcfg)
	} else {
		if cfg.HTTPClient != nil {
			ctx = gooidc.ClientContext(ctx, cfg.HTTPClient)
		}
		op, err := gooidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery: %w", err)
		}
		verifier = op.Verifier(vcfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BearerVerifier{
		verifier: verifier,
		claims:   claims,
		logger:   logger.With("component", "oidc_bearer"),
	}, nil
}

// VerifyToken returns the token's Identity, or nil when the token is invalid.
func (v *BearerVerifier) VerifyToken(ctx context.Context, token string) (domainauth.Principal, error) {
	tok, err := v.verifier.Verify(ctx, token)
	if err != nil {
		v.logger.DebugContext(ctx, "bearer token rejected", "error", err)
		return nil, nil
	}
	var claims map[string]any
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode token claims: %w", err)
	}
	fields := v.claims.extract(claims)
	if fields.userID == "" {
		fields.userID = tok.Subject
	}
	return fields.identity(tok.Expiry), nil
}

// UserRoles returns the roles carried by an Identity from VerifyToken.
func (v *BearerVerifier) UserRoles(_ context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	id, ok := user.(domainauth.Identity)
	if !ok {
		return domainauth.RoleSet{}, nil
	}
	return domainauth.RolesOf(id.Roles...), nil
}
