package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func fastWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := NewWatcher(path, DefaultConfig(),
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
		WithWatcherLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	return w
}

// --- Constructor ---

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher("", DefaultConfig())
	assert.Error(t, err)

	_, err = NewWatcher("config.yaml", nil)
	assert.Error(t, err)
}

func TestNewWatcher_NonExistentPathAllowed(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConfig())
	require.NoError(t, err)
	assert.False(t, w.IsRunning())
	assert.Equal(t, 8080, w.Current().Server.HTTPPort)
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}

// --- Reload ---

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "log:\n  level: info\n", base)

	w := fastWatcher(t, path)

	reloaded := make(chan *Config, 1)
	w.OnReload(func(old, updated *Config) {
		assert.Equal(t, "info", old.Log.Level)
		reloaded <- updated
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeConfig(t, path, "log:\n  level: debug\n", base.Add(time.Minute))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "debug", w.Current().Log.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback not invoked")
	}
}

func TestWatcher_InvalidConfigKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "log:\n  level: info\n", base)

	w := fastWatcher(t, path)
	called := make(chan struct{}, 1)
	w.OnReload(func(_, _ *Config) { called <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeConfig(t, path, "log:\n  level: verbose\n", base.Add(time.Minute))

	select {
	case <-called:
		t.Fatal("invalid config must not be applied")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, "info", w.Current().Log.Level)
}

func TestWatcher_DetectsCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.yaml")
	w := fastWatcher(t, path)

	reloaded := make(chan *Config, 1)
	w.OnReload(func(_, updated *Config) { reloaded <- updated })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeConfig(t, path, "server:\n  http_port: 8181\n", time.Now())

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 8181, cfg.Server.HTTPPort)
	case <-time.After(2 * time.Second):
		t.Fatal("creation not detected")
	}
}

// --- Lifecycle ---

func TestWatcher_StartTwiceAndStopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "{}\n", time.Now())

	w := fastWatcher(t, path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx))

	w.Stop()
	assert.False(t, w.IsRunning())
	assert.NotPanics(t, w.Stop)

	// 停止后可以再次启动
	require.NoError(t, w.Start(ctx))
	w.Stop()
}
