package modloader

import (
	"sort"
	"time"
)

// Status is a read-only diagnostic snapshot of a loader.
type Status struct {
	Registered   []string            `json:"registered"`
	Loaded       []string            `json:"loaded"`
	Loading      []string            `json:"loading"`
	Failed       []string            `json:"failed"`
	Dependencies map[string][]string `json:"dependencies"`
	Metrics      LoadMetrics         `json:"metrics"`
	Health       HealthReport        `json:"health"`
}

// Status returns a diagnostic snapshot.
func (l *Loader) Status() Status {
	st := Status{
		Registered:   l.registry.Names(),
		Loaded:       l.store.names(),
		Loading:      l.inflightNames(),
		Failed:       []string{},
		Dependencies: l.graph.Snapshot(),
		Metrics:      l.stats.snapshot(),
		Health:       l.Health(),
	}
	for _, ms := range l.registry.States() {
		if ms.Status == ModuleStatusFailed {
			st.Failed = append(st.Failed, ms.Descriptor.Name)
		}
	}
	return st
}

// ModuleInfo describes one registered module.
type ModuleInfo struct {
	Name         string        `json:"name"`
	Status       ModuleStatus  `json:"status"`
	Enabled      bool          `json:"enabled"`
	Lazy         bool          `json:"lazy"`
	Priority     int           `json:"priority"`
	Dependencies []string      `json:"dependencies"`
	Dependents   []string      `json:"dependents"`
	LoadedAt     *time.Time    `json:"loadedAt,omitempty"`
	LoadDuration time.Duration `json:"loadDuration,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
}

// ModuleInfo returns the state of a registered module.
func (l *Loader) ModuleInfo(name string) (ModuleInfo, bool) {
	desc, ok := l.registry.Get(name)
	if !ok {
		return ModuleInfo{}, false
	}
	status, _ := l.registry.Status(name)
	info := ModuleInfo{
		Name:         name,
		Status:       status,
		Enabled:      desc.Enabled,
		Lazy:         desc.Lazy,
		Priority:     desc.Priority,
		Dependencies: l.graph.Dependencies(name),
		Dependents:   l.graph.Dependents(name),
	}
	if rec, ok := l.store.get(name); ok {
		loadedAt := rec.LoadedAt
		info.LoadedAt = &loadedAt
		info.LoadDuration = rec.LoadDuration
	}
	if msg, ok := l.stats.snapshot().LastErrors[name]; ok {
		info.LastError = msg
	}
	return info, true
}

func (l *Loader) inflightNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.inflight))
	for name := range l.inflight {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
