package modloader

import (
	"sort"
	"sync"
)

type registration struct {
	descriptor ModuleDescriptor
	status     ModuleStatus
}

// ModuleRegistry stores module descriptors by name together with the load
// status the Loader assigns to them. Registering a descriptor also updates
// the dependency graph entry for that name.
type ModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string]*registration
	graph   *DependencyGraph
}

// NewModuleRegistry creates an empty registry backed by graph.
func NewModuleRegistry(graph *DependencyGraph) *ModuleRegistry {
	if graph == nil {
		graph = NewDependencyGraph()
	}
	return &ModuleRegistry{
		modules: make(map[string]*registration),
		graph:   graph,
	}
}

// Register inserts or replaces the descriptor for desc.Name. Replacing a
// descriptor keeps a loaded or loading status since the live instance is
// unaffected; a failed status is reset so the new descriptor gets a fresh
// start.
func (r *ModuleRegistry) Register(desc ModuleDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	desc = desc.clone()

	r.mu.Lock()
	status := ModuleStatusRegistered
	if existing, ok := r.modules[desc.Name]; ok {
		switch existing.status {
		case ModuleStatusLoaded, ModuleStatusLoading:
			status = existing.status
		}
	}
	r.modules[desc.Name] = &registration{descriptor: desc, status: status}
	r.graph.Set(desc.Name, desc.Dependencies)
	r.mu.Unlock()
	return nil
}

// Get returns the descriptor registered under name.
func (r *ModuleRegistry) Get(name string) (ModuleDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.modules[name]
	if !ok {
		return ModuleDescriptor{}, false
	}
	return reg.descriptor.clone(), true
}

// Status returns the load status of name.
func (r *ModuleRegistry) Status(name string) (ModuleStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.modules[name]
	if !ok {
		return "", false
	}
	return reg.status, true
}

func (r *ModuleRegistry) setStatus(name string, status ModuleStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.modules[name]; ok {
		reg.status = status
	}
}

// resetLoaded moves every loaded or loading module back to registered.
func (r *ModuleRegistry) resetLoaded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.modules {
		if reg.status == ModuleStatusLoaded || reg.status == ModuleStatusLoading {
			reg.status = ModuleStatusRegistered
		}
	}
}

// Names returns all registered module names, sorted.
func (r *ModuleRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns a copy of every descriptor, sorted by name.
func (r *ModuleRegistry) Descriptors() []ModuleDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModuleDescriptor, 0, len(r.modules))
	for _, reg := range r.modules {
		out = append(out, reg.descriptor.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ModuleState is a descriptor paired with its status.
type ModuleState struct {
	Descriptor ModuleDescriptor
	Status     ModuleStatus
}

// States returns every descriptor with its status, sorted by name.
func (r *ModuleRegistry) States() []ModuleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModuleState, 0, len(r.modules))
	for _, reg := range r.modules {
		out = append(out, ModuleState{Descriptor: reg.descriptor.clone(), Status: reg.status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.Name < out[j].Descriptor.Name })
	return out
}

// Graph returns the dependency graph maintained by the registry.
func (r *ModuleRegistry) Graph() *DependencyGraph {
	return r.graph
}
