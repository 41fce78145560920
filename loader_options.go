package modloader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader logger. A nil logger keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoadTimeout sets the default deadline for module factories.
// Non-positive values keep DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithShutdownTimeout bounds Shutdown when its context has no deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.shutdownTimeout = d
		}
	}
}

// WithMetricsRegistry registers the loader collectors with reg instead of a
// private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(l *Loader) {
		if reg != nil {
			l.metricsRegistry = reg
		}
	}
}

// WithConfig applies timeouts from cfg. Module overrides in cfg are applied
// when descriptors are registered through ApplyConfig.
func WithConfig(cfg *Config) Option {
	return func(l *Loader) {
		if cfg == nil {
			return
		}
		if cfg.LoadTimeout > 0 {
			l.timeout = cfg.LoadTimeout
		}
		if cfg.ShutdownTimeout > 0 {
			l.shutdownTimeout = cfg.ShutdownTimeout
		}
	}
}
