// Package demo provides a small module set used by the modloader command to
// exercise the loader end to end.
package demo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/modloader"
)

// Service is the instance type built by every demo factory.
type Service struct {
	name    string
	deps    []any
	options map[string]any
	logger  modloader.Logger

	mu          sync.Mutex
	initialized time.Time
	stopped     bool
}

// Name returns the module name the service was built for.
func (s *Service) Name() string { return s.name }

// Initialize implements modloader.Initializer.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = time.Now()
	s.logger.Debug("Demo service initialized", "module", s.name, "dependencies", len(s.deps))
	return nil
}

// Shutdown implements modloader.Shutdowner.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.logger.Debug("Demo service stopped", "module", s.name)
	return nil
}

// factory builds a Service after resolving its declared dependencies from
// the host. An optional "delay" option simulates slow construction.
func factory(name string, deps ...string) modloader.Factory {
	return func(ctx context.Context, host modloader.Host, opts map[string]any) (any, error) {
		if raw, ok := opts["delay"]; ok {
			d, err := time.ParseDuration(fmt.Sprint(raw))
			if err != nil {
				return nil, fmt.Errorf("invalid delay option: %w", err)
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		svc := &Service{name: name, options: opts, logger: host.Logger()}
		for _, dep := range deps {
			inst, ok := host.Loaded(dep)
			if !ok {
				return nil, fmt.Errorf("dependency %s is not loaded", dep)
			}
			svc.deps = append(svc.deps, inst)
		}
		return svc, nil
	}
}

// Descriptors returns the demo module set:
//
//	storage            eager, highest priority
//	cache   -> storage eager
//	api     -> cache, storage
//	analytics -> storage (lazy)
//	reports -> analytics (lazy, disabled)
func Descriptors() []modloader.ModuleDescriptor {
	return []modloader.ModuleDescriptor{
		{Name: "storage", Enabled: true, Priority: 100, Factory: factory("storage")},
		{Name: "cache", Dependencies: []string{"storage"}, Enabled: true, Priority: 50, Factory: factory("cache", "storage")},
		{Name: "api", Dependencies: []string{"cache", "storage"}, Enabled: true, Priority: 10, Factory: factory("api", "cache", "storage")},
		{Name: "analytics", Dependencies: []string{"storage"}, Enabled: true, Lazy: true, Factory: factory("analytics", "storage")},
		{Name: "reports", Dependencies: []string{"analytics"}, Enabled: false, Lazy: true, Factory: factory("reports", "analytics")},
	}
}

// Register adds the demo module set to l.
func Register(l *modloader.Loader) error {
	for _, desc := range Descriptors() {
		if err := l.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
