// Package modloader provides a registry-driven, dependency-resolving,
// lazy-loading component manager.
//
// Components are described by a ModuleDescriptor and registered with a
// Loader. A descriptor names the module, lists the modules it depends on and
// carries a Factory that builds the instance. The Loader resolves and loads
// dependencies before the module itself, deduplicates concurrent loads of the
// same module, bounds every factory call with a timeout and derives a health
// report from what it has loaded.
//
// Basic usage:
//
//	l := modloader.New(modloader.WithLogger(logger))
//	_ = l.Register(modloader.ModuleDescriptor{
//		Name:    "cache",
//		Enabled: true,
//		Lazy:    true,
//		Factory: newCache,
//	})
//	summary := l.LoadEager(ctx)
//	cache, err := l.LoadModule(ctx, "cache")
//	defer l.Shutdown(context.Background())
package modloader

import "context"

// Factory builds a module instance. The context carries the load deadline;
// host gives access to the loader logger and to already loaded dependencies;
// opts are the descriptor options.
//
// A factory that outlives its deadline keeps running in the background and
// whatever it eventually returns is dropped, so factories must tolerate their
// result being discarded.
type Factory func(ctx context.Context, host Host, opts map[string]any) (any, error)

// Host is the view of the loader handed to factories.
type Host interface {
	// Logger returns the loader logger.
	Logger() Logger

	// Loaded returns the instance of a module that has finished loading.
	// Every dependency declared by a descriptor is loaded before its
	// factory runs.
	Loaded(name string) (any, bool)
}

// Initializer is implemented by instances that need a setup step after
// construction. Initialize is called exactly once, after all dependencies
// have been initialized, and the module is not considered loaded until it
// returns.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner is implemented by instances that hold resources. Shutdown is
// called exactly once when the loader shuts down.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
