// Package login implements session-based login: a Manager that loads the
// current user from the session or a signed remember-me cookie, logs users
// in and out, runs hooks and applies a redirect-based failure policy.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/loginkit/internal/data/cryptoutil"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/http/session"
	"github.com/target/loginkit/internal/observability/metrics"
	"github.com/target/loginkit/internal/observability/statsd"
	"github.com/target/loginkit/internal/ports"
	"github.com/target/loginkit/internal/service"
)

const (
	defaultRememberMeCookie   = "remember_me"
	defaultRememberMeDuration = 30 * 24 * time.Hour
	defaultUserIDAttribute    = "id"
)

var (
	// ErrMissingSecretKey is returned by NewManager without a secret key.
	ErrMissingSecretKey = errors.New("login: secret key is required")
	// ErrMissingUserID is returned by Login when the user carries no id.
	ErrMissingUserID = errors.New("login: user has no id")
	// ErrNoSession is returned by Login when no session is attached to the request.
	ErrNoSession = errors.New("login: session middleware not installed")
)

// Hook runs after a login or logout. The first error aborts the chain.
type Hook func(w http.ResponseWriter, r *http.Request, user domainauth.Principal) error

// FailureHandler renders an authentication or authorization failure.
type FailureHandler func(w http.ResponseWriter, r *http.Request, reason domainauth.FailureReason)

// Config configures a Manager.
type Config struct {
	// SecretKey signs remember-me cookies. Required.
	SecretKey string
	// LoginURL is where unauthenticated browsers are sent. Empty means 401.
	LoginURL             string
	RememberMeCookieName string
	RememberMeDuration   time.Duration
	// UserIDAttribute names the map key or struct field holding the user id.
	UserIDAttribute string

	Users ports.UserLoader
	Roles ports.RoleProvider
	// Sessions, when set, lets Middleware attach a session if the
	// application did not install session.Middleware itself.
	Sessions session.Store

	Logger  *slog.Logger
	Metrics statsd.Sink
	// Now overrides the clock used for remember-me signatures.
	Now func() time.Time
}

// Manager coordinates session login state.
type Manager struct {
	loginURL    string
	cookieName  string
	rememberFor time.Duration
	userIDAttr  string
	signer      *cryptoutil.TimestampSigner
	svc         *service.AuthService
	sessions    session.Store
	logger      *slog.Logger
	metrics     statsd.Sink
	onLogin     []Hook
	onLogout    []Hook
	onFailure   FailureHandler
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if cfg.RememberMeCookieName == "" {
		cfg.RememberMeCookieName = defaultRememberMeCookie
	}
	if cfg.RememberMeDuration <= 0 {
		cfg.RememberMeDuration = defaultRememberMeDuration
	}
	if cfg.UserIDAttribute == "" {
		cfg.UserIDAttribute = defaultUserIDAttribute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "login")

	signer, err := cryptoutil.NewTimestampSigner(cfg.SecretKey, cfg.RememberMeCookieName)
	if err != nil {
		return nil, fmt.Errorf("remember-me signer: %w", err)
	}
	if cfg.Now != nil {
		signer = signer.WithClock(cfg.Now)
	}

	m := &Manager{
		loginURL:    cfg.LoginURL,
		cookieName:  cfg.RememberMeCookieName,
		rememberFor: cfg.RememberMeDuration,
		userIDAttr:  cfg.UserIDAttribute,
		signer:      signer,
		svc: service.NewAuthService(service.AuthServiceOptions{
			Users:  cfg.Users,
			Roles:  cfg.Roles,
			Logger: logger,
		}),
		sessions: cfg.Sessions,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
	m.onFailure = m.DefaultFailure
	return m, nil
}

// OnLogin appends a hook run after each successful Login.
func (m *Manager) OnLogin(h Hook) { m.onLogin = append(m.onLogin, h) }

// OnLogout appends a hook run when Logout finds a user.
func (m *Manager) OnLogout(h Hook) { m.onLogout = append(m.onLogout, h) }

// OnFailure replaces the failure handler. DefaultFailure stays callable.
func (m *Manager) OnFailure(h FailureHandler) {
	if h == nil {
		h = m.DefaultFailure
	}
	m.onFailure = h
}

// LoginURL returns the configured login URL.
func (m *Manager) LoginURL() string { return m.loginURL }

// HasRoleProvider reports whether LoginRequired accepts a role spec.
func (m *Manager) HasRoleProvider() bool { return m.svc.HasRoleProvider() }

// RememberMeCookieName returns the remember-me cookie name.
func (m *Manager) RememberMeCookieName() string { return m.cookieName }

// CurrentUser resolves the request's user: the cached state user first, then
// the session user id, then the remember-me cookie. Any failure yields nil.
func (m *Manager) CurrentUser(r *http.Request) domainauth.Principal {
	ctx := r.Context()
	st, hasState := domainauth.StateFromContext(ctx)
	if user, ok := st.CachedUser(); ok {
		return user
	}
	if !m.svc.HasUserLoader() {
		return nil
	}

	sess := session.FromContext(ctx)
	userID, _ := sess.Get(domainauth.UserIDKey)
	fromCookie := false
	if userID == "" {
		userID = m.rememberedUserID(r)
		fromCookie = userID != ""
	}
	if userID == "" {
		return nil
	}

	user, err := m.svc.LoadUser(ctx, userID)
	if err != nil {
		m.logger.WarnContext(ctx, "user loader failed", "error", err)
		metrics.EmitSessionEvent(m.metrics, metrics.SessionLoaderFailed)
		return nil
	}
	if user == nil {
		return nil
	}

	if sess != nil {
		if cur, _ := sess.Get(domainauth.UserIDKey); cur != userID {
			sess.Set(domainauth.UserIDKey, userID)
		}
	}
	if fromCookie {
		metrics.EmitSessionEvent(m.metrics, metrics.SessionRemembered)
	}
	if hasState {
		st.SetUser(user)
	}
	return user
}

func (m *Manager) rememberedUserID(r *http.Request) string {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	id, err := m.signer.Unsign(c.Value, m.rememberFor)
	if err != nil {
		m.logger.DebugContext(r.Context(), "remember-me cookie rejected", "error", err)
		return ""
	}
	return id
}

// LoginOptions tunes Login.
type LoginOptions struct {
	// RememberMe sets the signed remember-me cookie.
	RememberMe bool
	// RedirectURL is used when the request carries no safe "next". Defaults to "/".
	RedirectURL string
}

// Login records user in the session and request state, optionally sets the
// remember-me cookie, runs login hooks and redirects.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, user domainauth.Principal, opts LoginOptions) error {
	userID, ok := UserID(user, m.userIDAttr)
	if !ok {
		return fmt.Errorf("%w: missing %q attribute or key", ErrMissingUserID, m.userIDAttr)
	}
	sess := session.FromContext(r.Context())
	if sess == nil {
		return ErrNoSession
	}
	sess.Set(domainauth.UserIDKey, userID)
	st, hasState := domainauth.StateFromContext(r.Context())
	if hasState {
		st.SetUser(user)
	}

	if opts.RememberMe {
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    m.signer.Sign(userID),
			Path:     "/",
			MaxAge:   int(m.rememberFor / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   session.IsSecureRequest(r),
		})
	}

	for _, hook := range m.onLogin {
		if err := hook(w, r, user); err != nil {
			// A failed hook aborts the login.
			sess.Pop(domainauth.UserIDKey)
			if hasState {
				st.ClearUser()
			}
			m.expireRememberCookie(w, r)
			return fmt.Errorf("login hook: %w", err)
		}
	}
	metrics.EmitSessionEvent(m.metrics, metrics.SessionLogin)
	m.logger.InfoContext(r.Context(), "user logged in", "user_id", userID, "remember_me", opts.RememberMe)

	redirectURL := opts.RedirectURL
	if redirectURL == "" {
		redirectURL = "/"
	}
	applyRedirect(w, r, redirectURL, "")
	return nil
}

// Logout forgets the session user, clears the request state and deletes the
// remember-me cookie. Logout hooks run only when a user was logged in.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	var user domainauth.Principal
	st, hasState := domainauth.StateFromContext(ctx)
	if hasState {
		user, _ = st.CachedUser()
		st.ClearUser()
	}
	if sess := session.FromContext(ctx); sess != nil {
		sess.Pop(domainauth.UserIDKey)
	}

	m.expireRememberCookie(w, r)

	if !domainauth.Present(user) {
		return nil
	}
	for _, hook := range m.onLogout {
		if err := hook(w, r, user); err != nil {
			return fmt.Errorf("logout hook: %w", err)
		}
	}
	metrics.EmitSessionEvent(m.metrics, metrics.SessionLogout)
	return nil
}

// expireRememberCookie drops any remember-me cookie already queued on w and
// queues a deletion with the attributes Login sets.
func (m *Manager) expireRememberCookie(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, m.cookieName+"=") {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   session.IsSecureRequest(r),
	})
}

// Authorize evaluates spec for user with the configured RoleProvider.
func (m *Manager) Authorize(ctx context.Context, spec domainauth.RoleSpec, user domainauth.Principal) (bool, error) {
	return m.svc.Authorize(ctx, spec, user)
}
