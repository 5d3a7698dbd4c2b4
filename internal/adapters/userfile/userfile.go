// Package userfile loads a static user directory from YAML. It backs the
// Basic, Digest and Token backends and the session LoginManager in
// AUTH_MODE=file.
package userfile

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

var (
	_ ports.PasswordVerifier = (*Directory)(nil)
	_ ports.PasswordStore    = (*Directory)(nil)
	_ ports.TokenVerifier    = (*Directory)(nil)
	_ ports.UserLoader       = (*Directory)(nil)
	_ ports.RoleProvider     = (*Directory)(nil)
)

// Roles accepts either a single role or a list in YAML.
type Roles []string

func (r *Roles) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s == "" {
			*r = nil
			return nil
		}
		*r = Roles{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("line %d: roles must be a string or a list", node.Line)
	}
}

// Entry is one user in the file.
type Entry struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Email    string `yaml:"email,omitempty"`
	// Password is a bcrypt hash ("$2a$..."), or plaintext for development.
	Password string `yaml:"password,omitempty"`
	// HA1 is MD5(username:realm:password) for Digest without plaintext.
	HA1    string   `yaml:"ha1,omitempty"`
	Tokens []string `yaml:"tokens,omitempty"`
	Roles  Roles    `yaml:"roles,omitempty"`
}

// File is the document layout.
type File struct {
	Users []Entry `yaml:"users"`
}

// User is the principal handed out by Directory.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// PrincipalID implements domainauth.Identifier.
func (u *User) PrincipalID() string { return u.ID }

// Directory is an immutable user table.
type Directory struct {
	byID       map[string]*Entry
	byUsername map[string]*Entry
	byToken    map[string]*Entry
	// useHA1 makes LookupPassword return stored HA1 values.
	useHA1 bool
}

// Options tunes Load and Parse.
type Options struct {
	// DigestHA1 makes LookupPassword return the ha1 field instead of password.
	DigestHA1 bool
}

// Load reads and parses path.
func Load(path string, opts Options) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return Parse(data, opts)
}

// Parse builds a Directory from YAML bytes.
func Parse(data []byte, opts Options) (*Directory, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	d := &Directory{
		byID:       map[string]*Entry{},
		byUsername: map[string]*Entry{},
		byToken:    map[string]*Entry{},
		useHA1:     opts.DigestHA1,
	}
	var errs []error
	for i := range f.Users {
		e := &f.Users[i]
		if e.Username == "" {
			errs = append(errs, fmt.Errorf("user %d: username is required", i))
			continue
		}
		if e.ID == "" {
			e.ID = e.Username
		}
		if _, dup := d.byID[e.ID]; dup {
			errs = append(errs, fmt.Errorf("user %q: duplicate id %q", e.Username, e.ID))
			continue
		}
		if _, dup := d.byUsername[e.Username]; dup {
			errs = append(errs, fmt.Errorf("user %q: duplicate username", e.Username))
			continue
		}
		d.byID[e.ID] = e
		d.byUsername[e.Username] = e
		for _, tok := range e.Tokens {
			if tok != "" {
				d.byToken[tok] = e
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return d, nil
}

// Len returns the number of users.
func (d *Directory) Len() int { return len(d.byID) }

func (d *Directory) VerifyPassword(_ context.Context, username, password string) (domainauth.Principal, error) {
	e, ok := d.byUsername[username]
	if !ok || e.Password == "" {
		return nil, nil
	}
	if !checkPassword(e.Password, password) {
		return nil, nil
	}
	return e.user(), nil
}

// LookupPassword returns the Digest secret. bcrypt hashes cannot serve Digest.
func (d *Directory) LookupPassword(_ context.Context, username string) (string, bool, error) {
	e, ok := d.byUsername[username]
	if !ok {
		return "", false, nil
	}
	if d.useHA1 {
		return e.HA1, e.HA1 != "", nil
	}
	if e.Password == "" || IsHashed(e.Password) {
		return "", false, nil
	}
	return e.Password, true, nil
}

func (d *Directory) VerifyToken(_ context.Context, token string) (domainauth.Principal, error) {
	for tok, e := range d.byToken {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1 {
			return e.user(), nil
		}
	}
	return nil, nil
}

func (d *Directory) LoadUser(_ context.Context, userID string) (domainauth.Principal, error) {
	e, ok := d.byID[userID]
	if !ok {
		return nil, nil
	}
	return e.user(), nil
}

func (d *Directory) UserRoles(_ context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	id, ok := user.(domainauth.Identifier)
	if !ok {
		return domainauth.RoleSet{}, nil
	}
	e, ok := d.byID[id.PrincipalID()]
	if !ok {
		return domainauth.RoleSet{}, nil
	}
	return domainauth.RolesOf(e.Roles...), nil
}

func (e *Entry) user() *User {
	return &User{ID: e.ID, Username: e.Username, Email: e.Email, Roles: append([]string(nil), e.Roles...)}
}

// IsHashed reports whether s is a bcrypt hash rather than a plaintext password.
func IsHashed(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func checkPassword(stored, given string) bool {
	if IsHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// HashPassword returns a bcrypt hash suitable for the password field.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
