package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

// writeSnapshot saves a resolved snapshot to path for the watcher to load.
func writeSnapshot(t *testing.T, path string, env Environment) {
	t.Helper()
	cfg, err := Resolve(testRegistry(), env)
	require.NoError(t, err)
	require.NoError(t, SaveEnvironmentConfig(cfg, path))
}

func TestWatcher_StartLoadsInitialSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	writeSnapshot(t, path, EnvStaging)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	cfg := w.LastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, EnvStaging, cfg.Environment)
}

func TestWatcher_StartFailsOnMissingFile(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)

	require.Error(t, w.Start(context.Background()))
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.yaml")
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- w.Stop() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after failed Start")
	}

	// A later Start succeeds once the snapshot exists.
	writeSnapshot(t, path, EnvStaging)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()
	assert.Equal(t, EnvStaging, w.LastConfig().Environment)
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	writeSnapshot(t, path, EnvStaging)

	var reloads atomic.Int32
	var gotEnv atomic.Value

	w, err := NewWatcher(path, func(cfg *EnvironmentConfig) {
		reloads.Add(1)
		gotEnv.Store(string(cfg.Environment))
	}, WithDebounceDelay(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeSnapshot(t, path, EnvProduction)

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "production", gotEnv.Load())
}

func TestWatcher_InvalidFileKeepsLastSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	writeSnapshot(t, path, EnvStaging)

	var errs atomic.Int32
	w, err := NewWatcher(path, nil,
		WithDebounceDelay(20*time.Millisecond),
		WithErrorCallback(func(error) { errs.Add(1) }),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	require.NoError(t, writeFile(path, "environment: nonsense\nservers: []\n"))

	require.Eventually(t, func() bool {
		return errs.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	cfg := w.LastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, EnvStaging, cfg.Environment, "broken file leaves the last good snapshot")
}

func TestWatcher_ForceReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	writeSnapshot(t, path, EnvStaging)

	var reloads atomic.Int32
	w, err := NewWatcher(path, func(*EnvironmentConfig) { reloads.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeSnapshot(t, path, EnvProduction)
	require.NoError(t, w.ForceReload())

	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
	assert.Equal(t, EnvProduction, w.LastConfig().Environment)
}
