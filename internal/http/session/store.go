// Package session carries a per-request session record between the browser
// and the handlers. Records live either entirely in a cookie or server-side
// behind an id cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

// Store loads the session for a request and writes it back on the response.
type Store interface {
	Load(r *http.Request) (*domainauth.Session, error)
	Commit(w http.ResponseWriter, r *http.Request, sess *domainauth.Session) error
}

// CookieOptions are the attributes of the session cookie.
type CookieOptions struct {
	Name     string
	MaxAge   time.Duration
	Path     string
	Domain   string
	SameSite http.SameSite
	// Secure forces the Secure flag; otherwise it follows the request scheme.
	Secure bool
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = "session"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 14 * 24 * time.Hour
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

func (o CookieOptions) cookie(r *http.Request, value string) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   int(o.MaxAge / time.Second),
		Expires:  time.Now().Add(o.MaxAge),
		HttpOnly: true,
		Secure:   o.Secure || IsSecureRequest(r),
		SameSite: o.SameSite,
	}
}

func (o CookieOptions) expired(r *http.Request) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   o.Secure || IsSecureRequest(r),
		SameSite: o.SameSite,
	}
}

// IsSecureRequest reports whether the request arrived over HTTPS, directly or
// through a proxy setting X-Forwarded-Proto.
func IsSecureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// CookieStore keeps the whole session in the cookie.
type CookieStore struct {
	codec Codec
	opts  CookieOptions
}

// NewCookieStore returns a CookieStore using codec.
func NewCookieStore(codec Codec, opts CookieOptions) *CookieStore {
	return &CookieStore{codec: codec, opts: opts.withDefaults()}
}

// Load decodes the session cookie. Missing, tampered or expired cookies
// yield an empty session, never an error.
func (s *CookieStore) Load(r *http.Request) (*domainauth.Session, error) {
	sess := domainauth.NewSession("", s.opts.MaxAge)
	c, err := r.Cookie(s.opts.Name)
	if err != nil || c.Value == "" {
		return sess, nil
	}
	// Non-empty id marks "a cookie was presented" so an emptied session is deleted.
	sess.ID = s.opts.Name
	values, err := s.codec.Decode(c.Value, s.opts.MaxAge)
	if err != nil {
		return sess, nil //nolint:nilerr // invalid cookies degrade to an empty session
	}
	sess.Values = values
	return sess, nil
}

// Commit writes the cookie when the session holds values and deletes a
// presented cookie once the session has been emptied.
func (s *CookieStore) Commit(w http.ResponseWriter, r *http.Request, sess *domainauth.Session) error {
	if sess.Len() == 0 {
		if sess.ID != "" {
			http.SetCookie(w, s.opts.expired(r))
		}
		return nil
	}
	value, err := s.codec.Encode(sess.Snapshot())
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, s.opts.cookie(r, value))
	sess.MarkClean()
	return nil
}

// ServerStore keeps a random id in the cookie and the record in a
// ports.SessionStore such as Redis.
type ServerStore struct {
	records ports.SessionStore
	opts    CookieOptions
	newID   func() string
}

// NewServerStore returns a ServerStore backed by records.
func NewServerStore(records ports.SessionStore, opts CookieOptions) *ServerStore {
	return &ServerStore{
		records: records,
		opts:    opts.withDefaults(),
		newID:   func() string { return uuid.New().String() },
	}
}

// Load fetches the record named by the cookie, starting a fresh session when
// the id is unknown or expired.
func (s *ServerStore) Load(r *http.Request) (*domainauth.Session, error) {
	c, err := r.Cookie(s.opts.Name)
	if err != nil || c.Value == "" {
		return domainauth.NewSession("", s.opts.MaxAge), nil
	}
	if uuid.Validate(c.Value) != nil {
		return domainauth.NewSession("", s.opts.MaxAge), nil
	}
	rec, err := s.records.Get(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return domainauth.NewSession("", s.opts.MaxAge), nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec.Values == nil {
		rec.Values = map[string]string{}
	}
	rec.MarkClean()
	return &rec, nil
}

// Commit saves non-empty sessions with a refreshed expiry and removes
// emptied ones.
func (s *ServerStore) Commit(w http.ResponseWriter, r *http.Request, sess *domainauth.Session) error {
	ctx := context.WithoutCancel(r.Context())
	if sess.Len() == 0 {
		if sess.ID == "" {
			return nil
		}
		if err := s.records.Delete(ctx, sess.ID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		http.SetCookie(w, s.opts.expired(r))
		return nil
	}
	if sess.ID == "" {
		sess.ID = s.newID()
	}
	sess.ExpiresAt = time.Now().Add(s.opts.MaxAge)
	if err := s.records.Save(ctx, *sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	http.SetCookie(w, s.opts.cookie(r, sess.ID))
	sess.MarkClean()
	return nil
}
