package modloader

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Loader errors
var (
	// Lookup errors
	ErrModuleNotFound = errors.New("module not found")
	ErrModuleDisabled = errors.New("module is disabled")

	// Resolution errors
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrDependencyFailed   = errors.New("dependency failed to load")

	// Construction errors
	ErrModuleLoadTimeout = errors.New("module load timed out")
	ErrFactoryFailed     = errors.New("module factory failed")
	ErrNilInstance       = errors.New("factory returned a nil instance")

	// Registration errors
	ErrInvalidDescriptor = errors.New("invalid module descriptor")

	// Lifecycle errors
	ErrLoaderClosed = errors.New("loader has been shut down")

	// Configuration errors
	ErrConfigNil               = errors.New("config is nil")
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")
	ErrConfigValidationFailed  = errors.New("config validation failed")
)

// CircularDependencyError reports a dependency cycle. Path starts and ends
// with the same module name.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("%s: cycle: %s", ErrCircularDependency, strings.Join(e.Path, " -> "))
}

func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}

// ModuleLoadTimeoutError is returned when a factory does not produce an
// instance before the configured deadline.
type ModuleLoadTimeoutError struct {
	Module  string
	Timeout time.Duration
}

func (e *ModuleLoadTimeoutError) Error() string {
	return fmt.Sprintf("%s: module %q did not load within %s", ErrModuleLoadTimeout, e.Module, e.Timeout)
}

func (e *ModuleLoadTimeoutError) Is(target error) bool {
	return target == ErrModuleLoadTimeout
}

// Factory lifecycle phases reported by FactoryError.
const (
	PhaseFactory    = "factory"
	PhaseInitialize = "initialize"
	PhaseShutdown   = "shutdown"
)

// FactoryError wraps a failure raised by a module factory or one of the
// instance lifecycle hooks.
type FactoryError struct {
	Module string
	Phase  string
	Err    error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("%s: module %q (%s): %v", ErrFactoryFailed, e.Module, e.Phase, e.Err)
}

func (e *FactoryError) Unwrap() error {
	return e.Err
}

func (e *FactoryError) Is(target error) bool {
	return target == ErrFactoryFailed
}

// IsErrCircularDependency reports whether err is or wraps a dependency cycle.
func IsErrCircularDependency(err error) bool {
	return errors.Is(err, ErrCircularDependency)
}
