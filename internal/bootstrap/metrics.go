package bootstrap

import (
	"log/slog"

	"github.com/target/loginkit/config"
	"github.com/target/loginkit/internal/observability/statsd"
)

// NewMetrics returns the StatsD client. A disabled config yields a client
// that drops every sample.
func NewMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	return statsd.NewClient(statsd.Config{
		Enabled:       cfg.IsEnabled(),
		Address:       cfg.StatsdAddress,
		Prefix:        cfg.Prefix,
		FlushInterval: cfg.FlushInterval,
		Logger:        logger,
	})
}
