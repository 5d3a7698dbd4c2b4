package auth

import "net/http"

// FailureReason distinguishes "no usable identity" from "identity present but
// insufficient role". The two map to different HTTP outcomes.
type FailureReason int

const (
	Unauthenticated FailureReason = iota + 1
	Unauthorized
)

func (r FailureReason) String() string {
	switch r {
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status class of the failure.
func (r FailureReason) Status() int {
	if r == Unauthorized {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// AuthenticationError reports a missing, malformed or invalid credential.
// It never escapes a login guard; guards translate it into a 401 failure.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// NewAuthenticationError returns an AuthenticationError with msg.
func NewAuthenticationError(msg string) *AuthenticationError {
	return &AuthenticationError{Message: msg}
}
