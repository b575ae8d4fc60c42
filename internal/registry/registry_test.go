package registry

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/toystudio/internal/process"
)

func spawnSleep(t *testing.T) *process.Handle {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sleep")
	}
	h, err := process.Default().Spawn(t.TempDir(), "sleep", []string{"30"}, process.WithGrace(200*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Terminate() })
	return h
}

func TestMarkInstalledAndRemove(t *testing.T) {
	r := New()
	assert.False(t, r.IsInstalled("a.toml"))
	assert.False(t, r.IsRunning("a.toml"))

	r.MarkInstalled("a.toml")
	r.MarkInstalled("a.toml")
	assert.True(t, r.IsInstalled("a.toml"))
	assert.False(t, r.IsRunning("a.toml"))
	assert.Equal(t, []string{"a.toml"}, r.IDs())

	assert.Nil(t, r.Remove("a.toml"))
	assert.False(t, r.IsInstalled("a.toml"))
	assert.Nil(t, r.Remove("a.toml"))
}

func TestRunningReflectsProcessExit(t *testing.T) {
	r := New()
	h := spawnSleep(t)
	r.MarkRunning("a.toml", h)
	assert.True(t, r.IsInstalled("a.toml"))
	assert.True(t, r.IsRunning("a.toml"))

	require.NoError(t, h.Terminate())
	<-h.Done()
	assert.False(t, r.IsRunning("a.toml"), "exited process must not report running")
	assert.True(t, r.IsInstalled("a.toml"))
}

func TestRemoveDoesNotKill(t *testing.T) {
	r := New()
	h := spawnSleep(t)
	r.MarkRunning("a.toml", h)
	got := r.Remove("a.toml")
	assert.Same(t, h, got)
	assert.Equal(t, process.Running, h.Poll())
}

func TestStartExclusive(t *testing.T) {
	r := New()
	r.MarkInstalled("a.toml")
	first := spawnSleep(t)
	h, err := r.StartExclusive("a.toml", func() (*process.Handle, error) { return first, nil })
	require.NoError(t, err)
	assert.Same(t, first, h)

	called := false
	_, err = r.StartExclusive("a.toml", func() (*process.Handle, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.False(t, called, "launch must not run while a live handle exists")
	assert.Same(t, first, r.Handle("a.toml"))
}

func TestStartExclusiveFailureLeavesNoEntry(t *testing.T) {
	r := New()
	boom := errors.New("spawn failed")
	_, err := r.StartExclusive("new.toml", func() (*process.Handle, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.IsInstalled("new.toml"))

	r.MarkInstalled("old.toml")
	_, err = r.StartExclusive("old.toml", func() (*process.Handle, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, r.IsInstalled("old.toml"), "pre-existing entry must survive")
	assert.Nil(t, r.Handle("old.toml"))
}

func TestStartExclusiveSerializesSameID(t *testing.T) {
	r := New()
	var (
		mu       sync.Mutex
		launches int
		wg       sync.WaitGroup
	)
	h := spawnSleep(t)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.StartExclusive("a.toml", func() (*process.Handle, error) {
				mu.Lock()
				launches++
				mu.Unlock()
				return h, nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, launches)
}

func TestRebuild(t *testing.T) {
	apps := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(apps, "comfyui"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(apps, "fooocus"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(apps, "stray.txt"), []byte("x"), 0o644))

	r := New()
	require.NoError(t, r.Rebuild(apps, ".toml"))
	assert.Equal(t, []string{"comfyui.toml", "fooocus.toml"}, r.IDs())
	for _, e := range r.Snapshot() {
		assert.False(t, e.Running)
	}
	require.NoError(t, New().Rebuild(filepath.Join(apps, "missing"), ".toml"))
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%5)) + ".toml"
			r.MarkInstalled(id)
			_ = r.IsRunning(id)
			_ = r.Snapshot()
			if i%7 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
}

func TestStopExclusive(t *testing.T) {
	r := New()
	h, err := r.StopExclusive("missing.toml", func(*process.Handle) error {
		t.Fatal("stop must not run without a handle")
		return nil
	})
	assert.Nil(t, h)
	assert.NoError(t, err)

	live := spawnSleep(t)
	r.MarkRunning("a.toml", live)

	boom := errors.New("denied")
	got, err := r.StopExclusive("a.toml", func(*process.Handle) error { return boom })
	assert.Same(t, live, got)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, live, r.Handle("a.toml"), "failed stop keeps the handle")

	got, err = r.StopExclusive("a.toml", func(h *process.Handle) error { return h.Terminate() })
	require.NoError(t, err)
	assert.Same(t, live, got)
	assert.Nil(t, r.Handle("a.toml"))
	assert.True(t, r.IsInstalled("a.toml"))
	assert.False(t, live.Alive())
}

func TestStartExclusiveNotInstalledWhileLaunching(t *testing.T) {
	r := New()
	var seen bool
	h := spawnSleep(t)
	_, err := r.StartExclusive("new.toml", func() (*process.Handle, error) {
		seen = r.IsInstalled("new.toml")
		return h, nil
	})
	require.NoError(t, err)
	assert.False(t, seen, "id must not be installed before launch succeeds")
	assert.True(t, r.IsInstalled("new.toml"))
	assert.Same(t, h, r.Handle("new.toml"))
}

func TestStartExclusiveRetryAfterFailedLaunch(t *testing.T) {
	r := New()
	release := make(chan struct{})
	entered := make(chan struct{})
	boom := errors.New("spawn failed")
	h := spawnSleep(t)

	errc := make(chan error, 1)
	go func() {
		_, err := r.StartExclusive("new.toml", func() (*process.Handle, error) {
			close(entered)
			<-release
			return nil, boom
		})
		errc <- err
	}()
	<-entered
	done := make(chan error, 1)
	go func() {
		_, err := r.StartExclusive("new.toml", func() (*process.Handle, error) { return h, nil })
		done <- err
	}()
	close(release)
	assert.ErrorIs(t, <-errc, boom)
	require.NoError(t, <-done)
	assert.True(t, r.IsInstalled("new.toml"))
	assert.Same(t, h, r.Handle("new.toml"))
}

func TestPollDuringSlowStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sh")
	}
	h, err := process.Default().Spawn(t.TempDir(), "sh", []string{"-c", "trap '' TERM; sleep 30"}, process.WithGrace(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Terminate() })

	r := New()
	r.MarkRunning("a.toml", h)

	stopping := make(chan struct{})
	stopped := make(chan error, 1)
	go func() {
		_, err := r.StopExclusive("a.toml", func(h *process.Handle) error {
			close(stopping)
			return h.Terminate()
		})
		stopped <- err
	}()
	<-stopping
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	assert.True(t, r.IsRunning("a.toml"), "process is alive until terminate returns")
	assert.Same(t, h, r.Handle("a.toml"))
	assert.Len(t, r.Snapshot(), 1)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "status poll waited on shutdown")

	require.NoError(t, <-stopped)
	assert.False(t, r.IsRunning("a.toml"))
	assert.Nil(t, r.Handle("a.toml"))
}
