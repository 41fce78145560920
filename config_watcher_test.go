package modloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modloader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loadTimeout: 1s\n"), 0o600))

	l := New()
	require.NoError(t, l.Register(simpleDescriptor("a")))

	w := NewConfigWatcher(path, l)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	assert.ErrorIs(t, w.Start(context.Background()), ErrWatcherRunning)

	require.NoError(t, os.WriteFile(path, []byte("loadTimeout: 7s\nmodules:\n  a:\n    enabled: false\n"), 0o600))

	require.Eventually(t, func() bool {
		return l.LoadTimeout() == 7*time.Second
	}, 3*time.Second, 20*time.Millisecond)

	desc, ok := l.Registry().Get("a")
	require.True(t, ok)
	assert.False(t, desc.Enabled)
}

func TestConfigWatcher_InvalidFileKeepsCurrentConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modloader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loadTimeout: 1s\n"), 0o600))

	l := New(WithLoadTimeout(time.Second))
	w := NewConfigWatcher(path, l)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("loadTimeout: -5s\n"), 0o600))
	assert.Never(t, func() bool {
		return l.LoadTimeout() != time.Second
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestConfigWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modloader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loadTimeout: 1s\n"), 0o600))

	w := NewConfigWatcher(path, New())
	assert.NoError(t, w.Stop(), "stopping a watcher that never started")

	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestConfigWatcher_MissingDirectory(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", "modloader.yaml"), New())
	assert.Error(t, w.Start(context.Background()))
}
