package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/loginkit/config"
	httpx "github.com/target/loginkit/internal/http"
)

// BuildHandler mounts comps on the application router.
func BuildHandler(cfg *config.AppConfig, comps *AuthComponents, logger *slog.Logger) http.Handler {
	return httpx.NewRouter(httpx.RouterServices{
		Manager:      comps.Manager,
		Sessions:     comps.Sessions,
		Passwords:    comps.Directory,
		Users:        comps.Users,
		DirectLogin:  cfg.IsDev,
		Basic:        comps.Basic,
		Token:        comps.Token,
		Digest:       comps.Digest,
		Multi:        comps.Multi,
		Federated:    comps.Federated,
		Identities:   comps.Identities,
		IdentityTTL:  comps.IdentityTTL,
		CookieDomain: cfg.HTTP.CookieDomain,
		LoginLimit: httpx.RateLimitConfig{
			RequestLimit: cfg.HTTP.LoginRateLimit,
			WindowSize:   cfg.HTTP.LoginRateWindow,
		},
		Logger: logger,
	})
}

// NewHTTPServer returns a server for handler with conservative timeouts.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeHTTP runs server until ctx is done, then shuts it down within timeout.
func ServeHTTP(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("HTTP server stopped")
	return <-errCh
}
