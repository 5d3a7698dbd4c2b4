package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/http/login"
	"github.com/target/loginkit/internal/ports"
)

// LoginHandlers serves the session login routes.
type LoginHandlers struct {
	Manager     *login.Manager
	Passwords   ports.PasswordVerifier
	Users       ports.UserLoader
	DirectLogin bool
	Logger      *slog.Logger
}

type loginRequest struct {
	UserID     string `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errDirectLogin        = errors.New("user_id login is disabled")
	errMissingCredentials = errors.New("username and password are required")
)

// Form describes how to log in. GET /login.
func (h *LoginHandlers) Form(w http.ResponseWriter, r *http.Request) {
	user, _ := domainauth.UserFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": domainauth.Present(user),
		"next":          r.URL.Query().Get("next"),
		"method":        "POST",
		"fields":        []string{"username", "password", "remember_me"},
	})
}

// Login authenticates the posted credentials and starts a session.
// POST /login[?next=/path].
func (h *LoginHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	var (
		user domainauth.Principal
		err  error
	)
	switch {
	case req.UserID != "":
		if !h.DirectLogin || h.Users == nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "direct_login_disabled", Err: errDirectLogin})
			return
		}
		user, err = h.Users.LoadUser(ctx, req.UserID)
	case req.Username != "" && req.Password != "" && h.Passwords != nil:
		user, err = h.Passwords.VerifyPassword(ctx, req.Username, req.Password)
	default:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_credentials", Err: errMissingCredentials})
		return
	}
	if err != nil {
		h.Logger.ErrorContext(ctx, "credential lookup failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: errors.New("login failed")})
		return
	}
	if !domainauth.Present(user) {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_credentials", Err: errInvalidCredentials})
		return
	}

	if err := h.Manager.Login(w, r, user, login.LoginOptions{
		RememberMe:  req.RememberMe,
		RedirectURL: "/dashboard",
	}); err != nil {
		h.Logger.ErrorContext(ctx, "login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: errors.New("login failed")})
	}
}

// Logout ends the session and redirects to the login page. GET /logout.
func (h *LoginHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.Logout(w, r); err != nil {
		h.Logger.ErrorContext(r.Context(), "logout failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "logout_failed", Err: errors.New("logout failed")})
		return
	}
	target := h.Manager.LoginURL()
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Status reports whether the request carries a logged-in user. GET /auth/status.
func (h *LoginHandlers) Status(w http.ResponseWriter, r *http.Request) {
	user := h.Manager.CurrentUser(r)
	if !domainauth.Present(user) {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
}

// Profile returns the logged-in user. GET /profile.
func (h *LoginHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	user, _ := domainauth.UserFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{"user": user})
}

// message replies {"message": text, "user": <display name>}.
func message(text string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := domainauth.UserFromContext(r.Context())
		WriteJSON(w, http.StatusOK, map[string]string{"message": text, "user": displayName(user)})
	})
}

// greetingHandler replies "<greeting>, <user>!". GET /api/*/{greeting}.
func greetingHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := domainauth.UserFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%s, %s!", r.PathValue("greeting"), displayName(user)),
	})
}

// displayName prefers a username, then the user id.
func displayName(user domainauth.Principal) string {
	if !domainauth.Present(user) {
		return ""
	}
	if s, ok := user.(string); ok {
		return s
	}
	for _, attr := range []string{"username", "name"} {
		if v, ok := login.Attribute(user, attr); ok {
			return v
		}
	}
	if v, ok := login.UserID(user, "id"); ok {
		return v
	}
	return fmt.Sprint(user)
}
