// Package orchestrator manages the set of monitored folders: registering,
// removing, reloading from configuration, and answering status queries. Each
// folder is keyed by its canonical path so re-adding the same directory under
// a different spelling is a no-op.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"foldermcp/internal/config"
	"foldermcp/internal/lifecycle"
	"foldermcp/internal/model"
	"foldermcp/internal/parser"
)

// maxConcurrentIndexing bounds parallel pipelines when the configuration
// does not override it.
func defaultConcurrency() int64 {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return int64(n)
}

// PathKey canonicalizes a folder path into the orchestrator's map key:
// absolute, cleaned, slash-separated, NFC, and case-folded on filesystems
// that ignore case.
func PathKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	key := norm.NFC.String(filepath.ToSlash(filepath.Clean(abs)))
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		key = strings.ToLower(key)
	}
	return key, nil
}

// stateDirFor maps a folder key to its private state directory name.
func stateDirFor(stateRoot, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(stateRoot, hex.EncodeToString(sum[:8]))
}

type Options struct {
	StateRoot string
	Registry  *parser.Registry
	Chunking  config.ChunkingConfig
	Debounce  time.Duration
	BatchSize int
	// MaxConcurrentIndexing <= 0 selects min(NumCPU, 4).
	MaxConcurrentIndexing int
	Logger                zerolog.Logger

	// OnFolderEvent, when set, observes every folder state transition in
	// per-folder order.
	OnFolderEvent func(folderPath string, state model.FolderState)
}

type entry struct {
	runner *lifecycle.Runner
	key    string
}

type Orchestrator struct {
	stateRoot string
	registry  *parser.Registry
	chunking  config.ChunkingConfig
	debounce  time.Duration
	batchSize int
	gate      *semaphore.Weighted
	log       zerolog.Logger
	onEvent   func(folderPath string, state model.FolderState)

	mu      sync.Mutex
	folders map[string]*entry

	// teardownMu serializes folder teardown so state directory removal
	// never interleaves across folders.
	teardownMu sync.Mutex
}

func New(opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = parser.NewRegistry()
		opts.Registry.Seal()
	}
	concurrency := int64(opts.MaxConcurrentIndexing)
	if concurrency <= 0 {
		concurrency = defaultConcurrency()
	}
	return &Orchestrator{
		stateRoot: opts.StateRoot,
		registry:  opts.Registry,
		chunking:  opts.Chunking,
		debounce:  opts.Debounce,
		batchSize: opts.BatchSize,
		gate:      semaphore.NewWeighted(concurrency),
		log:       opts.Logger,
		onEvent:   opts.OnFolderEvent,
		folders:   make(map[string]*entry),
	}
}

// Add registers and starts a folder. Adding a folder whose canonical path is
// already registered returns the existing registration without error.
func (o *Orchestrator) Add(ctx context.Context, folder config.FolderConfig) error {
	key, err := PathKey(folder.Path)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if _, exists := o.folders[key]; exists {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	opts := lifecycle.Options{
		Folder:      folder,
		StateDir:    stateDirFor(o.stateRoot, key),
		Registry:    o.registry,
		Chunking:    o.chunking,
		Debounce:    o.debounce,
		BatchSize:   o.batchSize,
		Gate:        o.gate,
		Logger:      o.log,
		StartPaused: !folder.Enabled,
	}
	if o.onEvent != nil {
		path := folder.Path
		opts.OnTransition = func(state model.FolderState) { o.onEvent(path, state) }
	}
	runner, err := lifecycle.NewRunner(opts)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if _, exists := o.folders[key]; exists {
		// lost the race; discard the unstarted runner
		o.mu.Unlock()
		return nil
	}
	o.folders[key] = &entry{runner: runner, key: key}
	o.mu.Unlock()

	runner.Start(ctx)
	o.log.Info().Str("folder", folder.Path).Msg("folder registered")
	return nil
}

// Remove stops a folder and deletes its state directory. Removing a folder
// that is not registered is a no-op, so Add followed by two Removes converges
// to the same end state as one.
func (o *Orchestrator) Remove(ctx context.Context, path string) error {
	key, err := PathKey(path)
	if err != nil {
		return err
	}

	o.mu.Lock()
	e, ok := o.folders[key]
	if ok {
		delete(o.folders, key)
	}
	o.mu.Unlock()
	if !ok {
		return nil
	}

	o.teardownMu.Lock()
	defer o.teardownMu.Unlock()
	if err := e.runner.Stop(ctx, true); err != nil {
		return err
	}
	o.log.Info().Str("folder", path).Msg("folder removed")
	return nil
}

// Reload applies a configuration diff: removed folders are torn down, added
// ones registered, and changed ones restarted with their new settings.
func (o *Orchestrator) Reload(ctx context.Context, diff config.FolderDiff) error {
	var firstErr error
	for _, folder := range diff.Removed {
		if err := o.Remove(ctx, folder.Path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, folder := range diff.Changed {
		if err := o.restart(ctx, folder); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, folder := range diff.Added {
		if err := o.Add(ctx, folder); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// restart stops a folder without discarding its index, then starts it again
// with the new configuration.
func (o *Orchestrator) restart(ctx context.Context, folder config.FolderConfig) error {
	key, err := PathKey(folder.Path)
	if err != nil {
		return err
	}
	o.mu.Lock()
	e, ok := o.folders[key]
	if ok {
		delete(o.folders, key)
	}
	o.mu.Unlock()
	if ok {
		o.teardownMu.Lock()
		err = e.runner.Stop(ctx, false)
		o.teardownMu.Unlock()
		if err != nil {
			return err
		}
	}
	return o.Add(ctx, folder)
}

// Get returns the runner for a folder path.
func (o *Orchestrator) Get(path string) (*lifecycle.Runner, error) {
	key, err := PathKey(path)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.folders[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return e.runner, nil
}

// FolderStatus is one folder's row in list_folders and get_status.
type FolderStatus struct {
	Path     string            `json:"path"`
	Name     string            `json:"name"`
	State    model.FolderState `json:"state"`
	Enabled  bool              `json:"enabled"`
	Progress model.Progress    `json:"progress"`
	Error    string            `json:"error,omitempty"`
}

// List reports every registered folder ordered by path.
func (o *Orchestrator) List() []FolderStatus {
	o.mu.Lock()
	entries := make([]*entry, 0, len(o.folders))
	for _, e := range o.folders {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	out := make([]FolderStatus, 0, len(entries))
	for _, e := range entries {
		folder := e.runner.Folder()
		fs := FolderStatus{
			Path:     folder.Path,
			Name:     folder.Name,
			State:    e.runner.State(),
			Enabled:  folder.Enabled,
			Progress: e.runner.Progress(),
		}
		if err := e.runner.LastErr(); err != nil {
			fs.Error = err.Error()
		}
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Runners returns the live runners, for the endpoint layer.
func (o *Orchestrator) Runners() []*lifecycle.Runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*lifecycle.Runner, 0, len(o.folders))
	for _, e := range o.folders {
		out = append(out, e.runner)
	}
	return out
}

// StopAll tears every folder down without removing state, for daemon
// shutdown. Teardowns run serialized in path order.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	entries := make([]*entry, 0, len(o.folders))
	for _, e := range o.folders {
		entries = append(entries, e)
	}
	o.folders = make(map[string]*entry)
	o.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	var firstErr error
	o.teardownMu.Lock()
	defer o.teardownMu.Unlock()
	for _, e := range entries {
		if err := e.runner.Stop(ctx, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
