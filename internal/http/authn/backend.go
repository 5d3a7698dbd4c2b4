package authn

// Package authn implements the stateless HTTP authentication backends
// (Basic, Digest, Token), their login-required guard and the MultiAuth
// dispatcher.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/observability/metrics"
	"github.com/target/loginkit/internal/observability/statsd"
	"github.com/target/loginkit/internal/ports"
	"github.com/target/loginkit/internal/service"
)

// Backend is a pluggable authentication strategy.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Scheme is the Authorization scheme token the backend accepts.
	Scheme() string
	// Header is the request header carrying credentials.
	Header() string
	// Authenticate returns the principal for r or an *domainauth.AuthenticationError.
	Authenticate(r *http.Request) (domainauth.Principal, error)
	// Challenge returns the WWW-Authenticate value for r.
	Challenge(r *http.Request) (string, error)
	// LoginRequired guards a handler with this backend.
	LoginRequired(opts ...Option) func(http.Handler) http.Handler
}

// ErrorHandler renders an authentication failure. status is 401 or 403.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, status int)

// DefaultErrorHandler writes a plain "Unauthorized Access" body.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("Unauthorized Access"))
}

// Option tunes a LoginRequired guard.
type Option func(*guardOptions)

type guardOptions struct {
	role     domainauth.RoleSpec
	optional bool
}

// WithRole requires the authenticated principal to satisfy spec.
func WithRole(spec domainauth.RoleSpec) Option {
	return func(o *guardOptions) { o.role = spec }
}

// Optional lets the handler run even when the role check fails. The
// response then defaults to 403 and Forbidden reports true.
func Optional() Option {
	return func(o *guardOptions) { o.optional = true }
}

type forbiddenKey struct{}

// Forbidden reports whether an Optional guard let the request through
// despite a failed role check.
func Forbidden(ctx context.Context) bool {
	v, _ := ctx.Value(forbiddenKey{}).(bool)
	return v
}

// Common holds settings shared by every backend config.
type Common struct {
	// Realm is advertised in the challenge. Defaults to "Authentication Required".
	Realm string
	// Roles enables WithRole guards.
	Roles ports.RoleProvider
	// ErrorHandler renders failures. Defaults to DefaultErrorHandler.
	ErrorHandler ErrorHandler
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// core is the state shared by the concrete backends.
type core struct {
	name    string
	scheme  string
	header  string
	realm   string
	onError ErrorHandler
	authz   *service.AuthService
	logger  *slog.Logger
	metrics statsd.Sink
}

func newCore(name, scheme, header string, c Common) core {
	if header == "" {
		header = defaultHeader
	}
	if c.Realm == "" {
		c.Realm = defaultRealm
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = DefaultErrorHandler
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "authn", "backend", name)
	return core{
		name:    name,
		scheme:  scheme,
		header:  header,
		realm:   c.Realm,
		onError: c.ErrorHandler,
		authz:   service.NewAuthService(service.AuthServiceOptions{Roles: c.Roles, Logger: logger}),
		logger:  logger,
		metrics: c.Metrics,
	}
}

func (c *core) Name() string   { return c.name }
func (c *core) Scheme() string { return c.scheme }
func (c *core) Header() string { return c.header }
func (c *core) Realm() string  { return c.realm }

// Authorize evaluates spec against the roles of user.
func (c *core) Authorize(ctx context.Context, spec domainauth.RoleSpec, user domainauth.Principal) (bool, error) {
	return c.authz.Authorize(ctx, spec, user)
}

// guard builds the login-required state machine around b.
func (c *core) guard(b Backend, opts ...Option) func(http.Handler) http.Handler {
	var o guardOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.role.IsZero() && !c.authz.HasRoleProvider() {
		panic(fmt.Sprintf("authn: %s backend requires a RoleProvider for role %s", c.name, o.role))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, st := domainauth.EnsureState(r.Context())
			r = r.WithContext(ctx)

			user, err := b.Authenticate(r)
			if err != nil {
				var authErr *domainauth.AuthenticationError
				if !errors.As(err, &authErr) {
					c.logger.ErrorContext(ctx, "authentication error", "error", err)
				} else {
					c.logger.DebugContext(ctx, "authentication failed", "reason", authErr.Message)
				}
				user = nil
			}
			if !domainauth.Present(user) {
				c.emit(metrics.ResultFailure, domainauth.Unauthenticated, start, err)
				c.fail(b, w, r, http.StatusUnauthorized)
				return
			}
			st.SetUser(user)

			if !o.role.IsZero() {
				ok, authzErr := c.authz.Authorize(ctx, o.role, user)
				if authzErr != nil {
					c.logger.ErrorContext(ctx, "role lookup failed", "error", authzErr)
				}
				if !ok {
					c.emit(metrics.ResultForbidden, domainauth.Unauthorized, start, authzErr)
					if !o.optional {
						c.fail(b, w, r, http.StatusForbidden)
						return
					}
					r = r.WithContext(context.WithValue(ctx, forbiddenKey{}, true))
					dw := &defaultStatusWriter{ResponseWriter: w, status: http.StatusForbidden}
					next.ServeHTTP(dw, r)
					dw.finish()
					return
				}
			}

			c.emit(metrics.ResultSuccess, 0, start, nil)
			next.ServeHTTP(w, r)
		})
	}
}

func (c *core) emit(result string, reason domainauth.FailureReason, start time.Time, err error) {
	m := metrics.AuthMetric{Backend: c.name, Result: result, Duration: time.Since(start), Err: err}
	if reason != 0 {
		m.Reason = reason.String()
	}
	metrics.EmitAuthAttempt(c.metrics, m)
}

// fail runs the error handler through a writer that stamps the challenge
// and never lets a failure go out as 200.
func (c *core) fail(b Backend, w http.ResponseWriter, r *http.Request, status int) {
	cw := &challengeWriter{ResponseWriter: w, status: status}
	cw.challenge = func() string {
		value, err := b.Challenge(r)
		if err != nil {
			c.logger.ErrorContext(r.Context(), "build challenge failed", "error", err)
			return ""
		}
		return value
	}
	c.onError(cw, r, status)
	cw.finish()
}

type challengeWriter struct {
	http.ResponseWriter
	status      int
	challenge   func() string
	wroteHeader bool
}

func (w *challengeWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if w.Header().Get("WWW-Authenticate") == "" {
		if v := w.challenge(); v != "" {
			w.Header().Set("WWW-Authenticate", v)
		}
	}
	if code == http.StatusOK {
		code = w.status
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *challengeWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(b)
}

func (w *challengeWriter) finish() {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
}

func (w *challengeWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// defaultStatusWriter substitutes status for an implicit 200.
type defaultStatusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *defaultStatusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *defaultStatusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(b)
}

func (w *defaultStatusWriter) finish() {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
}

func (w *defaultStatusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
