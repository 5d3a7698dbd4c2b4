package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/loginkit/config"
	"github.com/target/loginkit/internal/adapters/authroles"
	"github.com/target/loginkit/internal/adapters/devauth"
	"github.com/target/loginkit/internal/adapters/memory"
	"github.com/target/loginkit/internal/adapters/oidc"
	redisadapter "github.com/target/loginkit/internal/adapters/redis"
	"github.com/target/loginkit/internal/adapters/userfile"
	"github.com/target/loginkit/internal/data"
	"github.com/target/loginkit/internal/http/authn"
	"github.com/target/loginkit/internal/http/login"
	"github.com/target/loginkit/internal/http/session"
	"github.com/target/loginkit/internal/observability/statsd"
	"github.com/target/loginkit/internal/ports"
	"github.com/target/loginkit/internal/service"
)

// Directory is a user source serving every credential port.
type Directory interface {
	ports.PasswordVerifier
	ports.PasswordStore
	ports.TokenVerifier
	ports.UserLoader
	ports.RoleProvider
}

// AuthDeps are the connections the auth components may use. DB is required
// in postgres mode; Redis is required by the redis session and nonce stores.
type AuthDeps struct {
	Config  *config.AppConfig
	DB      *sql.DB
	Redis   redis.UniversalClient
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// AuthComponents is everything the router needs.
type AuthComponents struct {
	Directory   Directory
	Users       ports.UserLoader
	Roles       ports.RoleProvider
	Manager     *login.Manager
	Sessions    session.Store
	Basic       *authn.BasicAuth
	Token       *authn.TokenAuth
	Digest      *authn.DigestAuth
	Multi       *authn.MultiAuth
	Federated   *service.AuthService
	Identities  ports.IdentityStore
	IdentityTTL time.Duration
}

// BuildAuth assembles the auth stack for cfg.Auth.Mode.
func BuildAuth(ctx context.Context, deps AuthDeps) (*AuthComponents, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	groups := authroles.GroupRoleMapper{AdminGroup: cfg.Auth.AdminGroup, UserGroup: cfg.Auth.UserGroup}

	dir, devProvider, err := buildDirectory(deps, groups, logger)
	if err != nil {
		return nil, err
	}

	comps := &AuthComponents{Directory: dir, IdentityTTL: cfg.Session.MaxAge}
	if deps.Redis != nil {
		comps.Identities = redisadapter.NewIdentityStore(deps.Redis, "")
	} else {
		comps.Identities = memory.NewIdentityStore()
	}
	identityLoader, _ := comps.Identities.(ports.UserLoader)
	var dirUsers ports.UserLoader = dir
	if cfg.Auth.Mode == config.AuthModePostgres && deps.Redis != nil && cfg.Auth.UserCacheTTL > 0 {
		dirUsers = redisadapter.NewUserCache[data.User](deps.Redis, dir, redisadapter.UserCacheOptions{
			TTL:    cfg.Auth.UserCacheTTL,
			Logger: logger,
		})
	}
	comps.Users = service.ChainUserLoader{dirUsers, identityLoader}
	comps.Roles = authroles.IdentityRoleProvider{Next: dir}

	provider, err := buildFederatedProvider(cfg, devProvider)
	if err != nil {
		return nil, err
	}
	comps.Federated = service.NewAuthService(service.AuthServiceOptions{
		Users:    comps.Users,
		Roles:    comps.Roles,
		Provider: provider,
		Groups:   groups,
		Logger:   logger,
	})

	if comps.Sessions, err = buildSessionStore(cfg.Session, cfg.Auth.SecretKey, cfg.IsDev, deps.Redis); err != nil {
		return nil, err
	}

	comps.Manager, err = login.NewManager(login.Config{
		SecretKey:            cfg.Auth.SecretKey,
		LoginURL:             cfg.Auth.LoginURL,
		RememberMeCookieName: cfg.Auth.RememberMeCookieName,
		RememberMeDuration:   cfg.Auth.RememberMeDuration,
		UserIDAttribute:      cfg.Auth.UserIDAttribute,
		Users:                comps.Users,
		Roles:                comps.Roles,
		Logger:               logger,
		Metrics:              deps.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("login manager: %w", err)
	}

	if err := buildBackends(ctx, deps, comps, logger); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "auth configured",
		"mode", cfg.Auth.Mode,
		"session_backend", cfg.Session.Backend,
		"digest_nonces", cfg.Auth.Digest.NonceStore,
		"federated", comps.Federated.FederatedLoginEnabled(),
		"oidc_bearer", cfg.Auth.OIDC.Issuer != "",
	)
	return comps, nil
}

//nolint:ireturn // the directory type depends on the auth mode.
func buildDirectory(deps AuthDeps, groups authroles.GroupRoleMapper, logger *slog.Logger) (Directory, *devauth.Provider, error) {
	auth := &deps.Config.Auth
	switch auth.Mode {
	case config.AuthModeMock:
		if !deps.Config.IsDev {
			logger.Warn("AUTH_MODE=mock outside development; every backend accepts the dev identity")
		}
		dev, err := devauth.NewProvider(devauth.Config{
			UserID:     auth.DevAuth.UserID,
			Email:      auth.DevAuth.Email,
			Groups:     auth.DevAuth.Groups,
			Token:      auth.DevAuth.Token,
			Password:   auth.DevAuth.Password,
			RoleMapper: groups,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("dev auth: %w", err)
		}
		return dev, dev, nil

	case config.AuthModePostgres:
		if deps.DB == nil {
			return nil, nil, errors.New("postgres auth mode requires a database connection")
		}
		if !auth.Digest.UseHA1 {
			logger.Info("postgres directory stores HA1 values; enabling AUTH_DIGEST_USE_HA1")
			auth.Digest.UseHA1 = true
		}
		enc, err := NewHA1Encryptor(deps.Config.Postgres.EncryptionKey, deps.Config.IsDev, logger)
		if err != nil {
			return nil, nil, err
		}
		return data.NewUserRepo(deps.DB, data.UserRepoConfig{Encryptor: enc}), nil, nil

	default:
		dir, err := userfile.Load(auth.UsersFile, userfile.Options{DigestHA1: auth.Digest.UseHA1})
		if err != nil {
			return nil, nil, fmt.Errorf("load users file: %w", err)
		}
		logger.Info("users file loaded", "path", auth.UsersFile, "users", dir.Len())
		return dir, nil, nil
	}
}

// buildFederatedProvider prefers a configured OIDC issuer, then the dev
// provider. A nil provider disables /auth/login.
//
//nolint:ireturn // nil or one of two providers.
func buildFederatedProvider(cfg *config.AppConfig, dev *devauth.Provider) (ports.AuthProvider, error) {
	oauth := cfg.Auth.OAuth
	if oauth.Enabled() {
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
		})
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		return prov, nil
	}
	if dev != nil {
		return dev, nil
	}
	return nil, nil
}

//nolint:ireturn // cookie or server-side store.
func buildSessionStore(cfg config.SessionConfig, secret string, isDev bool, client redis.UniversalClient) (session.Store, error) {
	opts := session.CookieOptions{
		Name:     cfg.CookieName,
		MaxAge:   cfg.MaxAge,
		SameSite: cfg.SameSiteMode(),
		Secure:   cfg.HTTPSOnly && !isDev,
	}
	if cfg.Backend == config.SessionBackendRedis {
		if client == nil {
			return nil, errors.New("redis session backend requires a redis client")
		}
		return session.NewServerStore(redisadapter.NewSessionStore(client, cfg.RedisPrefix), opts), nil
	}
	if cfg.EncryptionKey != "" {
		codec, err := session.NewEncryptedCodec(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("session codec: %w", err)
		}
		return session.NewCookieStore(codec, opts), nil
	}
	codec, err := session.NewSignedCodec(secret)
	if err != nil {
		return nil, fmt.Errorf("session codec: %w", err)
	}
	return session.NewCookieStore(codec, opts), nil
}

func buildBackends(ctx context.Context, deps AuthDeps, comps *AuthComponents, logger *slog.Logger) error {
	auth := deps.Config.Auth
	common := authn.Common{
		Realm:   auth.Realm,
		Roles:   comps.Roles,
		Logger:  logger,
		Metrics: deps.Metrics,
	}

	comps.Basic = authn.NewBasicAuth(authn.BasicConfig{Common: common, Verifier: comps.Directory})

	var tokens ports.TokenVerifier = comps.Directory
	if auth.OIDC.Issuer != "" {
		bearer, err := oidc.NewBearerVerifier(ctx, oidc.BearerConfig{
			Issuer:   auth.OIDC.Issuer,
			Audience: auth.OIDC.Audience,
			Claims:   oidc.ClaimMapping{Roles: auth.OIDC.RolesClaim},
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("oidc bearer verifier: %w", err)
		}
		tokens = bearer
	}
	comps.Token = authn.NewTokenAuth(authn.TokenConfig{Common: common, Scheme: auth.TokenScheme, Verifier: tokens})

	var nonces ports.NonceStore = authn.SessionNonceStore{}
	if auth.Digest.NonceStore == config.NonceStoreRedis {
		if deps.Redis == nil {
			return errors.New("redis digest nonce store requires a redis client")
		}
		nonces = redisadapter.NewNonceStore(deps.Redis, redisadapter.NonceStoreOptions{TTL: auth.Digest.NonceTTL})
	}
	digest, err := authn.NewDigestAuth(authn.DigestConfig{
		Common:    common,
		Qop:       auth.Digest.Qop,
		Algorithm: auth.Digest.Algorithm,
		UseHA1:    auth.Digest.UseHA1,
		Passwords: comps.Directory,
		Nonces:    nonces,
	})
	if err != nil {
		return err
	}
	comps.Digest = digest

	comps.Multi, err = authn.NewMultiAuth(comps.Digest, comps.Token, comps.Basic)
	return err
}
