package modloader

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ModuleStatus represents the load state of a registered module.
type ModuleStatus string

const (
	// ModuleStatusRegistered indicates the module is known but not loaded
	ModuleStatusRegistered ModuleStatus = "registered"

	// ModuleStatusLoading indicates a load is in flight
	ModuleStatusLoading ModuleStatus = "loading"

	// ModuleStatusLoaded indicates the instance is in the store
	ModuleStatusLoaded ModuleStatus = "loaded"

	// ModuleStatusFailed indicates the last load attempt failed
	ModuleStatusFailed ModuleStatus = "failed"
)

// ModuleDescriptor is the static description of a loadable module.
type ModuleDescriptor struct {
	// Name is the unique key of the module.
	Name string `validate:"required"`

	// Dependencies lists the modules that must be loaded first, in order.
	Dependencies []string `validate:"dive,required"`

	// Enabled gates loading. Disabled modules always fail to load.
	Enabled bool

	// Lazy modules are loaded on first request. Eager (non-lazy) modules are
	// expected to be loaded at startup by LoadEager or LoadAllEnabled.
	Lazy bool

	// Priority orders eager loads, higher first. It has no effect on
	// correctness.
	Priority int

	// Factory builds the module instance.
	Factory Factory `validate:"required"`

	// Options are passed verbatim to the factory.
	Options map[string]any

	// Timeout overrides the loader's load timeout when positive.
	Timeout time.Duration `validate:"gte=0"`
}

var (
	descriptorValidator     *validator.Validate
	descriptorValidatorOnce sync.Once
)

// Validate checks the descriptor shape. Dependency existence is not checked;
// dependencies may be registered later.
func (d ModuleDescriptor) Validate() error {
	descriptorValidatorOnce.Do(func() {
		descriptorValidator = validator.New()
	})
	if err := descriptorValidator.Struct(d); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidDescriptor, d.Name, err)
	}
	return nil
}

// clone returns a copy that shares nothing mutable with d.
func (d ModuleDescriptor) clone() ModuleDescriptor {
	d.Dependencies = slices.Clone(d.Dependencies)
	if d.Options != nil {
		opts := make(map[string]any, len(d.Options))
		for k, v := range d.Options {
			opts[k] = v
		}
		d.Options = opts
	}
	return d
}
