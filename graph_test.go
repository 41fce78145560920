package modloader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyGraph_Dependencies(t *testing.T) {
	g := NewDependencyGraph()
	g.Set("api", []string{"cache", "storage"})
	g.Set("cache", []string{"storage"})

	assert.Equal(t, []string{"cache", "storage"}, g.Dependencies("api"))
	assert.Equal(t, []string{}, g.Dependencies("storage"), "unknown node has no dependencies")
	assert.Equal(t, []string{"api", "cache"}, g.Dependents("storage"))
	assert.Empty(t, g.Dependents("api"))
}

func TestDependencyGraph_SetCopiesInput(t *testing.T) {
	g := NewDependencyGraph()
	deps := []string{"a", "b"}
	g.Set("x", deps)
	deps[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, g.Dependencies("x"))

	out := g.Dependencies("x")
	out[1] = "mutated"
	assert.Equal(t, []string{"a", "b"}, g.Dependencies("x"))
}

func TestDependencyGraph_CheckCircular(t *testing.T) {
	tests := []struct {
		name      string
		edges     map[string][]string
		start     string
		wantCycle []string
	}{
		{
			name:  "acyclic chain",
			edges: map[string][]string{"a": {"b"}, "b": {"c"}},
			start: "a",
		},
		{
			name:  "diamond is not a cycle",
			edges: map[string][]string{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}},
			start: "a",
		},
		{
			name:  "missing dependency is a leaf",
			edges: map[string][]string{"a": {"ghost"}},
			start: "a",
		},
		{
			name:      "two node cycle",
			edges:     map[string][]string{"a": {"b"}, "b": {"a"}},
			start:     "a",
			wantCycle: []string{"a", "b", "a"},
		},
		{
			name:      "self dependency",
			edges:     map[string][]string{"a": {"a"}},
			start:     "a",
			wantCycle: []string{"a", "a"},
		},
		{
			name:      "cycle reachable from start",
			edges:     map[string][]string{"x": {"a"}, "a": {"b"}, "b": {"c"}, "c": {"a"}},
			start:     "x",
			wantCycle: []string{"a", "b", "c", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewDependencyGraph()
			for node, deps := range tt.edges {
				g.Set(node, deps)
			}

			err := g.CheckCircular(tt.start)
			if tt.wantCycle == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, IsErrCircularDependency(err))
			var cycleErr *CircularDependencyError
			require.True(t, errors.As(err, &cycleErr))
			assert.Equal(t, tt.wantCycle, cycleErr.Path)
		})
	}
}

func TestDependencyGraph_Snapshot(t *testing.T) {
	g := NewDependencyGraph()
	g.Set("a", []string{"b"})

	snap := g.Snapshot()
	snap["a"][0] = "mutated"
	snap["z"] = nil

	assert.Equal(t, []string{"b"}, g.Dependencies("a"))
	assert.NotContains(t, g.Snapshot(), "z")
}
