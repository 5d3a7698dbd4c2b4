package auth

// Package auth contains domain-level types for authentication, authorization and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"reflect"
	"time"
)

// Principal is the opaque identity value produced by a verifier or user loader.
// Consumers never inspect its shape; helpers below treat it as a reference.
type Principal any

// Identifier is implemented by principals that know the id stored in the session.
type Identifier interface {
	PrincipalID() string
}

// Present reports whether p carries an identity. Typed nil pointers, maps and
// slices count as absent so verifiers may return (*User)(nil) for "rejected".
func Present(p Principal) bool {
	if p == nil {
		return false
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !v.IsNil()
	case reflect.String:
		return v.Len() > 0
	case reflect.Bool:
		return v.Bool()
	default:
		return true
	}
}

// Identity represents a principal returned by an external identity provider.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string    `json:"id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Groups    []string  `json:"groups,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// PrincipalID implements Identifier.
func (i Identity) PrincipalID() string { return i.UserID }
