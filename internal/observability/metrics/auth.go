package metrics

import (
	"time"

	obserrors "github.com/target/loginkit/internal/observability/errors"
	"github.com/target/loginkit/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultForbidden = "forbidden"
	ResultError     = "error"
)

// AuthMetric captures one authentication or authorization decision.
type AuthMetric struct {
	// Backend is basic, digest, token or session.
	Backend  string
	Result   string
	Reason   string
	Duration time.Duration
	Err      error
}

// EmitAuthAttempt emits standardised auth decision metrics.
func EmitAuthAttempt(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"backend": in.Backend,
		"result":  in.Result,
	}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.attempt", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.duration", in.Duration, CloneTags(tags))
	}
}

// SessionEvent names a LoginManager lifecycle event.
type SessionEvent string

const (
	SessionLogin        SessionEvent = "login"
	SessionLogout       SessionEvent = "logout"
	SessionRemembered   SessionEvent = "remember_me_restore"
	SessionLoaderFailed SessionEvent = "loader_error"
)

// EmitSessionEvent counts LoginManager lifecycle events.
func EmitSessionEvent(sink statsd.Sink, event SessionEvent) {
	if sink == nil {
		return
	}
	sink.Count("auth.session", 1, map[string]string{"event": string(event)})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
