package watch

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

func TestWatcherTriggersReindexOnFileCreate(t *testing.T) {
	dir := t.TempDir()

	var calls int32
	reindex := func(ctx context.Context, roots []string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	w, err := New([]string{dir}, reindex, Config{Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o644))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) > 0
	}, time.Second, 10*time.Millisecond, "reindex should fire after debounce window")
}

func TestWatcherRegistersNewSubdirectories(t *testing.T) {
	dir := t.TempDir()

	var calls int32
	reindex := func(ctx context.Context, roots []string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	w, err := New([]string{dir}, reindex, Config{Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go w.Run(ctx)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) > 0
	}, time.Second, 10*time.Millisecond, "mkdir should also trigger a debounced reindex")

	atomic.StoreInt32(&calls, 0)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) > 0
	}, time.Second, 10*time.Millisecond, "watcher must have registered the new subdirectory")
}
