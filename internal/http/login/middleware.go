package login

import (
	"net/http"
	"time"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/http/session"
	"github.com/target/loginkit/internal/observability/metrics"
)

// Middleware installs request state and resolves the current user before
// next runs. It never short-circuits. When the Manager has a session store
// and no session is attached yet, it attaches one.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	resolve := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := domainauth.EnsureState(r.Context())
		r = r.WithContext(ctx)
		m.CurrentUser(r)
		next.ServeHTTP(w, r)
	})
	if m.sessions == nil {
		return resolve
	}
	withSession := session.Middleware(m.sessions, m.logger)(resolve)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session.FromContext(r.Context()) != nil {
			resolve.ServeHTTP(w, r)
			return
		}
		withSession.ServeHTTP(w, r)
	})
}

// LoginRequired guards next with the session user. A zero spec only needs a
// logged-in user. It panics when spec is set but no RoleProvider is configured.
func (m *Manager) LoginRequired(spec domainauth.RoleSpec) func(http.Handler) http.Handler {
	if !spec.IsZero() && !m.svc.HasRoleProvider() {
		panic("login: role " + spec.String() + " requires a RoleProvider")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, _ := domainauth.EnsureState(r.Context())
			r = r.WithContext(ctx)

			user := m.CurrentUser(r)
			if !domainauth.Present(user) {
				m.emit(metrics.ResultFailure, domainauth.Unauthenticated, start, nil)
				m.onFailure(w, r, domainauth.Unauthenticated)
				return
			}
			ok, err := m.svc.Authorize(ctx, spec, user)
			if err != nil {
				m.logger.ErrorContext(ctx, "role lookup failed", "error", err)
			}
			if !ok {
				m.emit(metrics.ResultForbidden, domainauth.Unauthorized, start, err)
				m.onFailure(w, r, domainauth.Unauthorized)
				return
			}
			m.emit(metrics.ResultSuccess, 0, start, nil)
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Manager) emit(result string, reason domainauth.FailureReason, start time.Time, err error) {
	in := metrics.AuthMetric{Backend: "session", Result: result, Duration: time.Since(start), Err: err}
	if reason != 0 {
		in.Reason = reason.String()
	}
	metrics.EmitAuthAttempt(m.metrics, in)
}
