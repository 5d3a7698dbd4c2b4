package authn

import (
	"errors"
	"net/http"
	"slices"
)

// MultiAuth dispatches each request to the first backend whose scheme
// matches the request's credentials.
type MultiAuth struct {
	backends []Backend
}

// NewMultiAuth builds a dispatcher over backends, in priority order.
func NewMultiAuth(backends ...Backend) (*MultiAuth, error) {
	if len(backends) == 0 {
		return nil, errors.New("multiauth: at least one backend is required")
	}
	for _, b := range backends {
		if b == nil {
			return nil, errors.New("multiauth: nil backend")
		}
	}
	return &MultiAuth{backends: slices.Clone(backends)}, nil
}

// Backends returns the configured backends in priority order.
func (m *MultiAuth) Backends() []Backend { return slices.Clone(m.backends) }

// Select returns the backend for r. When no backend's scheme matches, the
// first backend handles the request and produces its own challenge.
func (m *MultiAuth) Select(r *http.Request) Backend {
	for _, b := range m.backends {
		if schemeMatches(r, b.Header(), b.Scheme()) {
			return b
		}
	}
	return m.backends[0]
}

// LoginRequired guards next with whichever backend Select picks per request.
func (m *MultiAuth) LoginRequired(opts ...Option) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := make([]http.Handler, len(m.backends))
		for i, b := range m.backends {
			guarded[i] = b.LoginRequired(opts...)(next)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sel := m.Select(r)
			for i, b := range m.backends {
				if b == sel {
					guarded[i].ServeHTTP(w, r)
					return
				}
			}
		})
	}
}
