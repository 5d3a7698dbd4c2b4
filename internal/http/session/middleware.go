package session

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	domainauth "github.com/target/loginkit/internal/domain/auth"
)

type sessionKey struct{}

// WithSession attaches sess to ctx.
func WithSession(ctx context.Context, sess *domainauth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the request session, or nil when the middleware is not installed.
func FromContext(ctx context.Context) *domainauth.Session {
	sess, _ := ctx.Value(sessionKey{}).(*domainauth.Session)
	return sess
}

// Middleware loads the session before the handler runs and commits it just
// before the response headers are written.
func Middleware(store Store, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := store.Load(r)
			if err != nil {
				logger.WarnContext(r.Context(), "session load failed, starting fresh", "error", err)
				sess = domainauth.NewSession("", 0)
			}
			r = r.WithContext(WithSession(r.Context(), sess))

			cw := &commitWriter{ResponseWriter: w}
			cw.commit = func() {
				if commitErr := store.Commit(w, r, sess); commitErr != nil {
					logger.ErrorContext(r.Context(), "session commit failed", "error", commitErr)
				}
			}
			next.ServeHTTP(cw, r)
			cw.commitOnce()
		})
	}
}

// commitWriter runs commit exactly once, before the first header write.
type commitWriter struct {
	http.ResponseWriter
	commit func()
	once   sync.Once
}

func (w *commitWriter) commitOnce() { w.once.Do(w.commit) }

func (w *commitWriter) WriteHeader(code int) {
	w.commitOnce()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.commitOnce()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Flush() {
	w.commitOnce()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *commitWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	return h.Hijack()
}

func (w *commitWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
