package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/loginkit/internal/http/login"
	"github.com/target/loginkit/internal/http/session"
	"github.com/target/loginkit/internal/ports"
	"github.com/target/loginkit/internal/service"
)

const (
	stateCookie    = "oauth_state"
	nonceCookie    = "oauth_nonce"
	redirectCookie = "post_login_redirect"
	oauthCookieAge = 10 * time.Minute
)

// FederatedHandlers runs the OAuth2/OIDC authorization code flow and hands
// the resulting identity to the login manager.
type FederatedHandlers struct {
	Svc          *service.AuthService
	Manager      *login.Manager
	Identities   ports.IdentityStore
	IdentityTTL  time.Duration
	CookieDomain string
	Logger       *slog.Logger
}

// Login starts the flow. GET /auth/login?next=<optional_redirect>.
func (h *FederatedHandlers) Login(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if !login.IsSafeURL(next, r.Host) {
		next = "/"
	}

	result, err := h.Svc.BeginLogin(r.Context(), next)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "begin federated login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: errors.New("login failed")})
		return
	}

	h.setCookie(w, r, stateCookie, result.State, oauthCookieAge)
	h.setCookie(w, r, nonceCookie, result.Nonce, oauthCookieAge)
	h.setCookie(w, r, redirectCookie, next, oauthCookieAge)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the flow. GET /auth/callback?code=<code>&state=<state>.
func (h *FederatedHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_code", Err: errors.New("authorization code is required")})
		return
	}
	if c, err := r.Cookie(stateCookie); err != nil || state == "" || c.Value != state {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_state", Err: errors.New("invalid or missing state parameter")})
		return
	}
	nonce, err := r.Cookie(nonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_nonce", Err: errors.New("missing nonce parameter")})
		return
	}

	identity, err := h.Svc.CompleteLogin(ctx, service.CompleteLoginInput{Code: code, State: state, Nonce: nonce.Value})
	if err != nil {
		h.Logger.WarnContext(ctx, "federated login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "login_completion_failed", Err: errors.New("login could not be completed")})
		return
	}

	if h.Identities != nil {
		if err := h.Identities.SaveIdentity(ctx, identity, h.IdentityTTL); err != nil {
			h.Logger.ErrorContext(ctx, "save identity failed", "error", err, "user_id", identity.UserID)
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: errors.New("login failed")})
			return
		}
	}

	h.clearCookie(w, r, stateCookie)
	h.clearCookie(w, r, nonceCookie)
	redirect := "/"
	if c, err := r.Cookie(redirectCookie); err == nil && login.IsSafeURL(c.Value, r.Host) {
		redirect = c.Value
	}
	h.clearCookie(w, r, redirectCookie)

	if err := h.Manager.Login(w, r, identity, login.LoginOptions{RedirectURL: redirect}); err != nil {
		h.Logger.ErrorContext(ctx, "session login failed", "error", err, "user_id", identity.UserID)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: errors.New("login failed")})
	}
}

func (h *FederatedHandlers) setCookie(w http.ResponseWriter, r *http.Request, name, value string, age time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   session.IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(age.Seconds()),
	})
}

func (h *FederatedHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   session.IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}
