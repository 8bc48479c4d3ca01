package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	target := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(target, []byte(`{}`), 0600))

	var calls atomic.Int32
	w, err := New(target, func() { calls.Add(1) })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start())

	// A burst of writes is coalesced.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte(`{"CADENCE_WORKER_PORT": 1}`), 0600))
	}
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop(), "stopping twice is harmless")
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	target := filepath.Join(dir, "settings.json")

	var calls atomic.Int32
	w, err := New(target, func() { calls.Add(1) })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0600))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())

	// Creating the target counts as a change.
	require.NoError(t, os.WriteFile(target, []byte(`{}`), 0600))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
}

func TestWatcher_StartFailsWithoutParent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing", "settings.json"), nil)
	require.NoError(t, err)
	assert.Error(t, w.Start())
	assert.NoError(t, w.Stop())
}
