// Package httpx wires the authentication backends and the session login
// manager into an HTTP application.
package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/http/authn"
	"github.com/target/loginkit/internal/http/login"
	"github.com/target/loginkit/internal/http/session"
	"github.com/target/loginkit/internal/ports"
	"github.com/target/loginkit/internal/service"
)

// RouterServices holds everything NewRouter mounts. Nil backends leave their
// routes unregistered.
type RouterServices struct {
	// Manager is required. The role-guarded pages are registered only when it
	// has a RoleProvider.
	Manager *login.Manager
	// Sessions backs the session middleware. Required for browser login.
	Sessions session.Store

	// Passwords checks POST /login username and password.
	Passwords ports.PasswordVerifier
	// Users resolves POST /login user_id when DirectLogin is set.
	Users       ports.UserLoader
	DirectLogin bool

	Basic  *authn.BasicAuth
	Token  *authn.TokenAuth
	Digest *authn.DigestAuth
	Multi  *authn.MultiAuth

	// Federated drives /auth/login and /auth/callback when it has a provider.
	Federated *service.AuthService
	// Identities remembers federated users so the session can reload them.
	Identities  ports.IdentityStore
	IdentityTTL time.Duration

	CookieDomain string
	LoginLimit   RateLimitConfig
	Logger       *slog.Logger
}

// NewRouter builds the application handler. Middleware order, outermost
// first: Recover, Logging, session, login state, mux.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	lh := &LoginHandlers{
		Manager:     services.Manager,
		Passwords:   services.Passwords,
		Users:       services.Users,
		DirectLogin: services.DirectLogin,
		Logger:      logger,
	}
	registerSessionRoutes(mux, lh, services.LoginLimit)
	registerAPIRoutes(mux, services)

	if services.Federated.FederatedLoginEnabled() {
		fh := &FederatedHandlers{
			Svc:          services.Federated,
			Manager:      services.Manager,
			Identities:   services.Identities,
			IdentityTTL:  services.IdentityTTL,
			CookieDomain: services.CookieDomain,
			Logger:       logger,
		}
		mux.HandleFunc("GET /auth/login", fh.Login)
		mux.HandleFunc("GET /auth/callback", fh.Callback)
	}

	var sessionMW Middleware
	if services.Sessions != nil {
		sessionMW = session.Middleware(services.Sessions, logger)
	}
	return Chain(mux,
		Recover(logger),
		Logging(logger),
		sessionMW,
		services.Manager.Middleware,
	)
}

func registerSessionRoutes(mux *http.ServeMux, h *LoginHandlers, limit RateLimitConfig) {
	m := h.Manager
	required := m.LoginRequired(nil)

	mux.HandleFunc("GET /login", h.Form)
	mux.Handle("POST /login", RateLimit(limit)(http.HandlerFunc(h.Login)))
	mux.HandleFunc("GET /logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)

	mux.Handle("GET /profile", required(http.HandlerFunc(h.Profile)))
	mux.Handle("GET /dashboard", required(message("Welcome to your dashboard")))
	if !m.HasRoleProvider() {
		return
	}
	mux.Handle("GET /admin", m.LoginRequired(domainauth.RequireRole("admin"))(message("Welcome to the admin area")))
	mux.Handle("GET /settings", m.LoginRequired(domainauth.RequireRole("editor"))(message("Settings")))
	mux.Handle("GET /restricted",
		m.LoginRequired(domainauth.AllRoles("admin", "editor"))(message("Restricted to admins who are also editors")))
}

func registerAPIRoutes(mux *http.ServeMux, s RouterServices) {
	greet := http.HandlerFunc(greetingHandler)
	if s.Basic != nil {
		mux.Handle("GET /api/basic/{greeting}", s.Basic.LoginRequired()(greet))
		mux.Handle("GET /api/welcome", s.Basic.LoginRequired(authn.WithRole(domainauth.RequireRole("user")))(message("Welcome")))
		mux.Handle("GET /api/admin", s.Basic.LoginRequired(authn.WithRole(domainauth.RequireRole("admin")))(message("Hello, admin")))
	}
	if s.Token != nil {
		mux.Handle("GET /api/token/{greeting}", s.Token.LoginRequired()(greet))
	}
	if s.Digest != nil {
		mux.Handle("GET /api/digest/{greeting}", s.Digest.LoginRequired()(greet))
	}
	if s.Multi != nil {
		mux.Handle("GET /api/multi/{greeting}", s.Multi.LoginRequired()(greet))
	}
}
