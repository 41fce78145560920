package modloader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLoadTimeout bounds a factory call when no timeout is configured.
	DefaultLoadTimeout = 30 * time.Second

	// DefaultShutdownTimeout bounds Shutdown when its context has no deadline.
	DefaultShutdownTimeout = 30 * time.Second
)

// inflightLoad is the shared result of one load attempt.
type inflightLoad struct {
	done     chan struct{}
	instance any
	err      error
}

func (f *inflightLoad) wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.instance, f.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for module load: %w", ctx.Err())
	}
}

// Loader resolves, loads and owns module instances. The registry, graph,
// store and in-flight table belong to a single Loader and are never shared.
//
// The zero value is not usable; create loaders with New.
type Loader struct {
	*eventSubject

	registry        *ModuleRegistry
	graph           *DependencyGraph
	store           *moduleStore
	stats           *loadStats
	logger          Logger
	metricsRegistry *prometheus.Registry

	// base holds descriptors as passed to Register, before config overrides.
	baseMu sync.Mutex
	base   map[string]ModuleDescriptor

	mu              sync.Mutex
	inflight        map[string]*inflightLoad
	timeout         time.Duration
	shutdownTimeout time.Duration
	closed          bool
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		store:           newModuleStore(),
		logger:          nopLogger{},
		inflight:        make(map[string]*inflightLoad),
		base:            make(map[string]ModuleDescriptor),
		timeout:         DefaultLoadTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metricsRegistry == nil {
		l.metricsRegistry = prometheus.NewRegistry()
	}
	l.graph = NewDependencyGraph()
	l.registry = NewModuleRegistry(l.graph)
	l.stats = newLoadStats(l.metricsRegistry)
	l.eventSubject = newEventSubject(l.logger)
	return l
}

// Logger implements Host.
func (l *Loader) Logger() Logger {
	return l.logger
}

// Loaded implements Host. It never triggers a load.
func (l *Loader) Loaded(name string) (any, bool) {
	rec, ok := l.store.get(name)
	if !ok {
		return nil, false
	}
	return rec.Instance, true
}

// Registry returns the loader's module registry.
func (l *Loader) Registry() *ModuleRegistry {
	return l.registry
}

// Graph returns the loader's dependency graph.
func (l *Loader) Graph() *DependencyGraph {
	return l.graph
}

// Gatherer exposes the loader's prometheus collectors.
func (l *Loader) Gatherer() prometheus.Gatherer {
	return l.metricsRegistry
}

// LoadTimeout returns the default factory deadline.
func (l *Loader) LoadTimeout() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timeout
}

// SetLoadTimeout changes the default factory deadline for loads started
// afterwards.
func (l *Loader) SetLoadTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.timeout = d
	l.mu.Unlock()
}

// Register adds or replaces a module descriptor. Only the descriptor shape
// is validated; dependencies may be registered later. The descriptor is kept
// as the base that ApplyConfig applies overrides to.
func (l *Loader) Register(desc ModuleDescriptor) error {
	l.baseMu.Lock()
	if err := l.registry.Register(desc); err != nil {
		l.baseMu.Unlock()
		l.logger.Error("Module registration rejected", "module", desc.Name, "error", err)
		return err
	}
	l.base[desc.Name] = desc.clone()
	l.baseMu.Unlock()
	l.logger.Debug("Module registered",
		"module", desc.Name,
		"dependencies", desc.Dependencies,
		"enabled", desc.Enabled,
		"lazy", desc.Lazy)
	l.emit(context.Background(), EventTypeModuleRegistered, ModuleEventData{
		Module:       desc.Name,
		Dependencies: desc.Dependencies,
	})
	return nil
}

// LoadModule returns the instance of name, loading it and its dependencies
// first if needed. Concurrent calls for the same module share one load.
//
// The load itself is not bound to ctx: if ctx ends the caller stops waiting
// but the load carries on for the other waiters. Only the factory timeout
// aborts a load.
//
// Unknown and disabled modules are rejected before any load starts. Their
// status is left unchanged and they are not counted as load failures in the
// health score; they only show up in the rejected counter of the metrics.
func (l *Loader) LoadModule(ctx context.Context, name string) (any, error) {
	if rec, ok := l.store.get(name); ok {
		return rec.Instance, nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, fmt.Errorf("load %q: %w", name, ErrLoaderClosed)
	}
	if call, ok := l.inflight[name]; ok {
		l.mu.Unlock()
		l.logger.Debug("Awaiting in-flight load", "module", name)
		return call.wait(ctx)
	}
	// A load may have completed since the fast path check.
	if rec, ok := l.store.get(name); ok {
		l.mu.Unlock()
		return rec.Instance, nil
	}

	desc, ok := l.registry.Get(name)
	if !ok {
		l.mu.Unlock()
		l.stats.recordRejected(name)
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if !desc.Enabled {
		l.mu.Unlock()
		l.stats.recordRejected(name)
		return nil, fmt.Errorf("%w: %s", ErrModuleDisabled, name)
	}

	timeout := l.timeout
	if desc.Timeout > 0 {
		timeout = desc.Timeout
	}
	call := &inflightLoad{done: make(chan struct{})}
	l.inflight[name] = call
	l.registry.setStatus(name, ModuleStatusLoading)
	l.mu.Unlock()

	l.stats.inflight.Inc()
	go l.runLoad(context.WithoutCancel(ctx), desc, timeout, call)
	return call.wait(ctx)
}

// runLoad performs one load attempt and publishes its result to call.
func (l *Loader) runLoad(ctx context.Context, desc ModuleDescriptor, timeout time.Duration, call *inflightLoad) {
	name := desc.Name
	start := time.Now()
	l.logger.Debug("Loading module", "module", name, "dependencies", desc.Dependencies)
	l.emit(ctx, EventTypeModuleLoading, ModuleEventData{Module: name, Dependencies: desc.Dependencies})

	instance, err := l.load(ctx, desc, timeout)
	duration := time.Since(start)

	if err == nil {
		err = l.commit(call, &LoadedModuleRecord{
			Name:         name,
			Instance:     instance,
			LoadedAt:     time.Now(),
			LoadDuration: duration,
		})
	}

	if err != nil {
		instance = nil
		l.mu.Lock()
		if l.inflight[name] == call {
			delete(l.inflight, name)
			l.registry.setStatus(name, ModuleStatusFailed)
		}
		l.mu.Unlock()

		l.stats.recordFailure(name, err)
		l.logger.Error("Failed to load module", "module", name, "duration", duration, "error", err)
		l.emit(ctx, EventTypeModuleFailed, ModuleEventData{Module: name, Duration: duration.String(), Error: err.Error()})
	} else {
		l.stats.recordSuccess(name, duration)
		l.stats.loaded.Set(float64(l.store.len()))
		l.logger.Info("Module loaded", "module", name, "duration", duration)
		l.emit(ctx, EventTypeModuleLoaded, ModuleEventData{Module: name, Duration: duration.String()})
	}

	l.stats.inflight.Dec()
	call.instance, call.err = instance, err
	close(call.done)
}

// commit moves a finished load into the store. Loads that finish after
// Shutdown are shut down and dropped.
func (l *Loader) commit(call *inflightLoad, rec *LoadedModuleRecord) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.discard(rec.Name, rec.Instance)
		return fmt.Errorf("load %q: %w", rec.Name, ErrLoaderClosed)
	}
	l.store.put(rec)
	l.registry.setStatus(rec.Name, ModuleStatusLoaded)
	if l.inflight[rec.Name] == call {
		delete(l.inflight, rec.Name)
	}
	l.mu.Unlock()
	return nil
}

func (l *Loader) load(ctx context.Context, desc ModuleDescriptor, timeout time.Duration) (any, error) {
	if err := l.graph.CheckCircular(desc.Name); err != nil {
		return nil, err
	}
	if err := l.loadDependencies(ctx, desc); err != nil {
		return nil, err
	}

	instance, err := l.construct(ctx, desc, timeout)
	if err != nil {
		return nil, err
	}

	if init, ok := instance.(Initializer); ok {
		if err := safeCall(func() error { return init.Initialize(ctx) }); err != nil {
			return nil, &FactoryError{Module: desc.Name, Phase: PhaseInitialize, Err: err}
		}
	}
	return instance, nil
}

// loadDependencies loads every direct dependency that is not loaded yet, in
// parallel. Shared transitive dependencies collapse onto one in-flight load.
func (l *Loader) loadDependencies(ctx context.Context, desc ModuleDescriptor) error {
	var g errgroup.Group
	for _, dep := range desc.Dependencies {
		dep := dep
		if _, ok := l.store.get(dep); ok {
			continue
		}
		g.Go(func() error {
			if _, err := l.LoadModule(ctx, dep); err != nil {
				return fmt.Errorf("%w: %s requires %s: %w", ErrDependencyFailed, desc.Name, dep, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// construct runs the factory against the load deadline.
func (l *Loader) construct(ctx context.Context, desc ModuleDescriptor, timeout time.Duration) (any, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan factoryResult, 1)
	go func() {
		var r factoryResult
		defer func() {
			if p := recover(); p != nil {
				r = factoryResult{err: fmt.Errorf("panic: %v", p)}
			}
			results <- r
		}()
		r.instance, r.err = desc.Factory(fctx, l, desc.Options)
	}()

	select {
	case r := <-results:
		switch {
		case r.err != nil && errors.Is(fctx.Err(), context.DeadlineExceeded):
			return nil, &ModuleLoadTimeoutError{Module: desc.Name, Timeout: timeout}
		case r.err != nil:
			return nil, &FactoryError{Module: desc.Name, Phase: PhaseFactory, Err: r.err}
		case r.instance == nil:
			return nil, &FactoryError{Module: desc.Name, Phase: PhaseFactory, Err: ErrNilInstance}
		}
		return r.instance, nil
	case <-fctx.Done():
		l.logger.Warn("Module factory timed out", "module", desc.Name, "timeout", timeout)
		go l.releaseLate(desc.Name, results)
		return nil, &ModuleLoadTimeoutError{Module: desc.Name, Timeout: timeout}
	}
}

type factoryResult struct {
	instance any
	err      error
}

// releaseLate waits for a factory that outlived its timeout and shuts down
// the instance it eventually returns, since no caller will ever receive it.
func (l *Loader) releaseLate(name string, results <-chan factoryResult) {
	r := <-results
	if r.err != nil || r.instance == nil {
		return
	}
	l.discard(name, r.instance)
}

// GetModule returns the instance of name if it is loaded. Lazy modules are
// loaded on demand; eager modules that are not loaded yet are reported as
// unavailable without starting a load. GetModule never fails.
func (l *Loader) GetModule(ctx context.Context, name string) (any, bool) {
	if rec, ok := l.store.get(name); ok {
		return rec.Instance, true
	}
	desc, ok := l.registry.Get(name)
	if !ok || !desc.Lazy {
		return nil, false
	}
	instance, err := l.LoadModule(ctx, name)
	if err != nil {
		l.logger.Debug("Lazy module unavailable", "module", name, "error", err)
		return nil, false
	}
	return instance, true
}

// LoadSummary reports the outcome of a bulk load.
type LoadSummary struct {
	Loaded []string
	Failed map[string]error
}

// Err joins the individual failures, or returns nil when every module loaded.
func (s LoadSummary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.Failed))
	for name := range s.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, s.Failed[name])
	}
	return errors.Join(errs...)
}

// LoadAllEnabled loads every enabled module. A module that fails is logged
// and recorded in the summary; the remaining modules are still loaded.
func (l *Loader) LoadAllEnabled(ctx context.Context) LoadSummary {
	return l.loadEnabled(ctx, func(ModuleDescriptor) bool { return true })
}

// LoadEager loads the enabled modules that are not lazy. It is meant for
// startup; lazy modules are left for GetModule.
func (l *Loader) LoadEager(ctx context.Context) LoadSummary {
	return l.loadEnabled(ctx, func(d ModuleDescriptor) bool { return !d.Lazy })
}

func (l *Loader) loadEnabled(ctx context.Context, include func(ModuleDescriptor) bool) LoadSummary {
	var targets []ModuleDescriptor
	for _, desc := range l.registry.Descriptors() {
		if desc.Enabled && include(desc) {
			targets = append(targets, desc)
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority > targets[j].Priority
	})

	summary := LoadSummary{Failed: make(map[string]error)}
	for _, desc := range targets {
		if _, err := l.LoadModule(ctx, desc.Name); err != nil {
			l.logger.Error("Module failed during bulk load, continuing", "module", desc.Name, "error", err)
			summary.Failed[desc.Name] = err
			continue
		}
		summary.Loaded = append(summary.Loaded, desc.Name)
	}
	l.logger.Info("Bulk load finished", "loaded", len(summary.Loaded), "failed", len(summary.Failed))
	return summary
}

// safeCall runs fn and converts a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
