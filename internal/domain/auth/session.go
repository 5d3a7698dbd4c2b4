package auth

import (
	"maps"
	"time"
)

// UserIDKey is the reserved session key holding the logged-in user's id.
const UserIDKey = "_user_id"

// Session is the per-browser record carried by the session middleware.
// Values are string-only; the id under UserIDKey is always a string.
type Session struct {
	ID        string            `json:"id,omitempty"`
	Values    map[string]string `json:"values"`
	ExpiresAt time.Time         `json:"expires_at"`

	modified bool
}

// NewSession returns an empty session expiring after ttl.
func NewSession(id string, ttl time.Duration) *Session {
	return &Session{ID: id, Values: map[string]string{}, ExpiresAt: time.Now().Add(ttl)}
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (string, bool) {
	if s == nil || s.Values == nil {
		return "", false
	}
	v, ok := s.Values[key]
	return v, ok
}

// Set stores value under key and marks the session modified.
func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	s.Values[key] = value
	s.modified = true
}

// Pop removes key and returns its previous value.
func (s *Session) Pop(key string) (string, bool) {
	v, ok := s.Get(key)
	if ok {
		delete(s.Values, key)
		s.modified = true
	}
	return v, ok
}

// Clear drops every value.
func (s *Session) Clear() {
	if len(s.Values) > 0 {
		s.modified = true
	}
	s.Values = map[string]string{}
}

// Len returns the number of stored values.
func (s *Session) Len() int { return len(s.Values) }

// Modified reports whether the session changed since it was loaded.
func (s *Session) Modified() bool { return s.modified }

// MarkClean resets the modified flag after a commit.
func (s *Session) MarkClean() { s.modified = false }

// Snapshot returns a copy of the values.
func (s *Session) Snapshot() map[string]string { return maps.Clone(s.Values) }

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
