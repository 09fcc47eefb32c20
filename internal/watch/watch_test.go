package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDebouncerCoalesces(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][]string
	)
	d := NewDebouncer(30*time.Millisecond, func(paths []string) {
		mu.Lock()
		calls = append(calls, paths)
		mu.Unlock()
	})
	defer d.Stop()

	d.Trigger("a")
	d.Trigger("b")
	d.Trigger("a")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, calls[0], 2)
}

func TestDebouncerStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := NewDebouncer(20*time.Millisecond, func([]string) { fired <- struct{}{} })
	d.Trigger("x")
	d.Stop()

	select {
	case <-fired:
		t.Fatal("callback ran after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherDetectsWrites(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "yu.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))

	changed := make(chan []string, 4)
	w := New([]string{dbPath}, 30*time.Millisecond, func(paths []string) {
		changed <- paths
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the watcher arm before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(dbPath, []byte("v2"), 0o644))

	select {
	case paths := <-changed:
		assert.Contains(t, paths, dbPath)
	case <-time.After(3 * time.Second):
		t.Fatal("no change callback")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherIgnoresSidecars(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "yu.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))

	changed := make(chan []string, 4)
	w := New([]string{dbPath}, 30*time.Millisecond, func(paths []string) {
		changed <- paths
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yu.db-wal"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	select {
	case paths := <-changed:
		t.Fatalf("unexpected callback for %v", paths)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	<-done
}
