package modloader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleDescriptor_Validate(t *testing.T) {
	f, _ := countingFactory("x", nil)

	tests := []struct {
		name    string
		desc    ModuleDescriptor
		wantErr bool
	}{
		{name: "valid", desc: ModuleDescriptor{Name: "x", Factory: f}},
		{name: "missing name", desc: ModuleDescriptor{Factory: f}, wantErr: true},
		{name: "missing factory", desc: ModuleDescriptor{Name: "x"}, wantErr: true},
		{name: "empty dependency name", desc: ModuleDescriptor{Name: "x", Factory: f, Dependencies: []string{""}}, wantErr: true},
		{name: "negative timeout", desc: ModuleDescriptor{Name: "x", Factory: f, Timeout: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidDescriptor)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestModuleRegistry_Register(t *testing.T) {
	g := NewDependencyGraph()
	r := NewModuleRegistry(g)

	require.NoError(t, r.Register(simpleDescriptor("cache", "storage")))
	require.NoError(t, r.Register(simpleDescriptor("storage")))

	desc, ok := r.Get("cache")
	require.True(t, ok)
	assert.Equal(t, []string{"storage"}, desc.Dependencies)
	assert.Equal(t, []string{"storage"}, g.Dependencies("cache"), "graph follows registration")

	status, ok := r.Status("cache")
	require.True(t, ok)
	assert.Equal(t, ModuleStatusRegistered, status)

	assert.Equal(t, []string{"cache", "storage"}, r.Names())
	assert.Len(t, r.Descriptors(), 2)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestModuleRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewModuleRegistry(nil)
	err := r.Register(ModuleDescriptor{Name: "broken"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	assert.Empty(t, r.Names())
}

func TestModuleRegistry_ReRegisterStatus(t *testing.T) {
	r := NewModuleRegistry(nil)
	require.NoError(t, r.Register(simpleDescriptor("a")))
	require.NoError(t, r.Register(simpleDescriptor("b")))

	r.setStatus("a", ModuleStatusLoaded)
	r.setStatus("b", ModuleStatusFailed)

	replacement := simpleDescriptor("a", "c")
	require.NoError(t, r.Register(replacement))
	require.NoError(t, r.Register(simpleDescriptor("b")))

	status, _ := r.Status("a")
	assert.Equal(t, ModuleStatusLoaded, status, "loaded status survives replacement")
	status, _ = r.Status("b")
	assert.Equal(t, ModuleStatusRegistered, status, "failed status is reset")
	assert.Equal(t, []string{"c"}, r.Graph().Dependencies("a"))
}

func TestModuleRegistry_GetReturnsCopy(t *testing.T) {
	r := NewModuleRegistry(nil)
	desc := simpleDescriptor("a", "b")
	desc.Options = map[string]any{"size": 1}
	require.NoError(t, r.Register(desc))

	desc.Dependencies[0] = "mutated"
	desc.Options["size"] = 2

	got, _ := r.Get("a")
	assert.Equal(t, []string{"b"}, got.Dependencies)
	assert.Equal(t, 1, got.Options["size"])

	got.Options["size"] = 3
	again, _ := r.Get("a")
	assert.Equal(t, 1, again.Options["size"])
}

func TestModuleRegistry_ResetLoaded(t *testing.T) {
	r := NewModuleRegistry(nil)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(simpleDescriptor(name)))
	}
	r.setStatus("a", ModuleStatusLoaded)
	r.setStatus("b", ModuleStatusLoading)
	r.setStatus("c", ModuleStatusFailed)

	r.resetLoaded()

	states := r.States()
	require.Len(t, states, 3)
	assert.Equal(t, ModuleStatusRegistered, states[0].Status)
	assert.Equal(t, ModuleStatusRegistered, states[1].Status)
	assert.Equal(t, ModuleStatusFailed, states[2].Status)
}
