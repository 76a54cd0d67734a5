package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"foldermcp/internal/config"
	"foldermcp/internal/model"
)

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o := New(Options{
		StateRoot: filepath.Join(t.TempDir(), "state"),
		Debounce:  50 * time.Millisecond,
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(func() { _ = o.StopAll(context.Background()) })
	return o
}

func folder(path string) config.FolderConfig {
	return config.FolderConfig{Path: path, Name: filepath.Base(path), Enabled: true}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func waitWatching(t *testing.T, o *Orchestrator, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		r, err := o.Get(path)
		return err == nil && r.State() == model.StateWatching
	}, 10*time.Second, 20*time.Millisecond)
}

func TestAddIdempotentByCanonicalPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	o := newOrchestrator(t)

	ctx := context.Background()
	require.NoError(t, o.Add(ctx, folder(root)))
	// same directory, non-canonical spelling
	require.NoError(t, o.Add(ctx, folder(root+string(filepath.Separator)+".")))
	require.Len(t, o.List(), 1)
}

func TestRemoveUnknownFolder(t *testing.T) {
	o := newOrchestrator(t)
	require.NoError(t, o.Remove(context.Background(), t.TempDir()))
}

func TestAddRemoveLifecycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "content")
	o := newOrchestrator(t)

	ctx := context.Background()
	require.NoError(t, o.Add(ctx, folder(root)))
	waitWatching(t, o, root)

	r, err := o.Get(root)
	require.NoError(t, err)
	st := r.Store()
	require.NotNil(t, st)

	require.NoError(t, o.Remove(ctx, root))
	require.Equal(t, model.StateStopped, r.State())
	_, err = o.Get(root)
	require.ErrorIs(t, err, model.ErrNotFound)

	// removing again is a no-op
	require.NoError(t, o.Remove(ctx, root))
}

func TestListOrderedByPath(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	base := t.TempDir()
	for _, name := range []string{"bbb", "aaa"} {
		dir := filepath.Join(base, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, o.Add(ctx, folder(dir)))
	}

	list := o.List()
	require.Len(t, list, 2)
	require.Less(t, list[0].Path, list[1].Path)
}

func TestReloadAppliesDiff(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	keep := t.TempDir()
	drop := t.TempDir()
	add := t.TempDir()
	writeFile(t, keep, "k.txt", "k")
	writeFile(t, drop, "d.txt", "d")
	writeFile(t, add, "a.txt", "a")

	require.NoError(t, o.Add(ctx, folder(keep)))
	require.NoError(t, o.Add(ctx, folder(drop)))
	waitWatching(t, o, keep)
	waitWatching(t, o, drop)

	require.NoError(t, o.Reload(ctx, config.FolderDiff{
		Removed: []config.FolderConfig{folder(drop)},
		Added:   []config.FolderConfig{folder(add)},
	}))

	_, err := o.Get(drop)
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = o.Get(add)
	require.NoError(t, err)
	_, err = o.Get(keep)
	require.NoError(t, err)
}

func TestStopAllStopsEverything(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	require.NoError(t, o.Add(ctx, folder(root)))
	waitWatching(t, o, root)

	r, err := o.Get(root)
	require.NoError(t, err)
	require.NoError(t, o.StopAll(ctx))
	require.Equal(t, model.StateStopped, r.State())
	require.Empty(t, o.List())
}

func TestFolderEventsObserved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	var mu sync.Mutex
	events := make(map[model.FolderState]bool)
	o := New(Options{
		StateRoot: filepath.Join(t.TempDir(), "state"),
		Debounce:  50 * time.Millisecond,
		Logger:    zerolog.Nop(),
		OnFolderEvent: func(path string, state model.FolderState) {
			require.Equal(t, root, path)
			mu.Lock()
			events[state] = true
			mu.Unlock()
		},
	})
	t.Cleanup(func() { _ = o.StopAll(context.Background()) })

	require.NoError(t, o.Add(context.Background(), folder(root)))
	waitWatching(t, o, root)

	mu.Lock()
	defer mu.Unlock()
	for _, state := range []model.FolderState{
		model.StateScanning, model.StateIndexing, model.StateActive, model.StateWatching,
	} {
		require.True(t, events[state], "missing %s event", state)
	}
}

func TestDisabledFolderWaitsForResume(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "indexed only on resume")
	o := newOrchestrator(t)

	ctx := context.Background()
	disabled := folder(root)
	disabled.Enabled = false
	require.NoError(t, o.Add(ctx, disabled))

	r, err := o.Get(root)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.State() == model.StatePaused },
		10*time.Second, 20*time.Millisecond)

	// parked before scanning: nothing was indexed
	st := r.Store()
	require.NotNil(t, st)
	_, total, err := st.ListDocuments(ctx, 10, 0)
	require.NoError(t, err)
	require.Zero(t, total)

	r.Resume()
	waitWatching(t, o, root)
	_, total, err = st.ListDocuments(ctx, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestPathKeyStable(t *testing.T) {
	dir := t.TempDir()
	k1, err := PathKey(dir)
	require.NoError(t, err)
	k2, err := PathKey(filepath.Join(dir, ".", "."))
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.NotContains(t, k1, "\\")
}
