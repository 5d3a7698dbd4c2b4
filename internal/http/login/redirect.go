package login

import (
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/target/loginkit/internal/domain/auth"
)

// IsSafeURL reports whether target may be used as a post-login redirect for
// a request to host. Relative URLs and absolute http(s) URLs on host pass.
func IsSafeURL(target, host string) bool {
	if target == "" || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
	default:
		return false
	}
	if u.User != nil {
		return false
	}
	return u.Host == "" || u.Host == host
}

// applyRedirect sends a 302 to next (or the request's "next" parameter)
// when it is safe, otherwise to fallback.
func applyRedirect(w http.ResponseWriter, r *http.Request, fallback, next string) {
	target := next
	if target == "" {
		target = r.URL.Query().Get("next")
	}
	if !IsSafeURL(target, r.Host) {
		target = fallback
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// DefaultFailure redirects unauthenticated browsers to the login URL with a
// next parameter, or answers 401 without one. Authorization failures get 403.
func (m *Manager) DefaultFailure(w http.ResponseWriter, r *http.Request, reason domainauth.FailureReason) {
	if reason == domainauth.Unauthenticated {
		if m.loginURL != "" {
			next := quotePath(r.URL.Path)
			sep := "?"
			if strings.Contains(m.loginURL, "?") {
				sep = "&"
			}
			applyRedirect(w, r, m.loginURL, m.loginURL+sep+"next="+next)
			return
		}
		writeText(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeText(w, http.StatusForbidden, "You do not have permission to access this resource")
}

// quotePath escapes p for use as a query value while keeping slashes readable.
func quotePath(p string) string {
	return strings.NewReplacer("+", "%20", "%2F", "/").Replace(url.QueryEscape(p))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
