// Package lifecycle drives one monitored folder through its states: from
// created through scanning, detecting, and indexing into the active/watching
// steady state, and down through stopping into stopped. Failures land in the
// terminal failed state with the cause retained for status reporting.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"foldermcp/internal/chunker"
	"foldermcp/internal/config"
	"foldermcp/internal/detect"
	"foldermcp/internal/embed"
	"foldermcp/internal/model"
	"foldermcp/internal/parser"
	"foldermcp/internal/pipeline"
	"foldermcp/internal/store"
)

// transitions lists every legal state edge. setState refuses anything else,
// which turns state machine bugs into loud internal errors instead of silent
// corruption.
var transitions = map[model.FolderState][]model.FolderState{
	model.StateCreated:   {model.StateScanning, model.StatePaused, model.StateStopping, model.StateFailed},
	model.StateScanning:  {model.StateDetecting, model.StateStopping, model.StateFailed},
	model.StateDetecting: {model.StateIndexing, model.StateActive, model.StateStopping, model.StateFailed},
	model.StateIndexing:  {model.StateActive, model.StateStopping, model.StateFailed},
	model.StateActive:    {model.StateWatching, model.StateStopping, model.StateFailed},
	model.StateWatching:  {model.StateIndexing, model.StatePaused, model.StateStopping, model.StateFailed},
	model.StatePaused:    {model.StateScanning, model.StateWatching, model.StateIndexing, model.StateStopping, model.StateFailed},
	model.StateStopping:  {model.StateStopped, model.StateFailed},
}

func legal(from, to model.FolderState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Options configures a Runner.
type Options struct {
	Folder    config.FolderConfig
	StateDir  string
	Registry  *parser.Registry
	Chunking  config.ChunkingConfig
	Debounce  time.Duration
	BatchSize int
	Logger    zerolog.Logger

	// Gate, when set, bounds how many folders index concurrently.
	Gate *semaphore.Weighted

	// StartPaused parks the folder in the paused state before any scanning
	// or indexing happens. Resume triggers the first pass.
	StartPaused bool

	// OnTransition, when set, observes every state change in order.
	OnTransition func(model.FolderState)
}

// Runner owns one folder end to end: its store, its embedding batcher, its
// watcher, and its state.
type Runner struct {
	folder      config.FolderConfig
	stateDir    string
	registry    *parser.Registry
	scanner     *detect.Scanner
	pipe        *pipeline.Pipeline
	store       *store.SQLiteStore
	batcher     *embed.Batcher
	debounce    time.Duration
	gate        *semaphore.Weighted
	startPaused bool
	log         zerolog.Logger

	onTransition func(model.FolderState)

	mu       sync.Mutex
	state    model.FolderState
	lastErr  error
	progress model.Progress

	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
	paused chan bool
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Folder.Path == "" {
		return nil, fmt.Errorf("%w: folder path is required", model.ErrInvalidInput)
	}
	if opts.StateDir == "" {
		return nil, fmt.Errorf("%w: state dir is required", model.ErrInvalidInput)
	}
	if opts.Registry == nil {
		opts.Registry = parser.NewRegistry()
		opts.Registry.Seal()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	provider, err := embed.NewProvider(opts.Folder.Embeddings.Backend, opts.Folder.Embeddings.Model)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create state dir: %v", model.ErrStoreUnavailable, err)
	}

	st := store.NewSQLiteStore(store.DBPath(opts.StateDir))
	batcher := embed.NewBatcher(provider, opts.BatchSize, embed.DefaultFlushInterval)

	log := opts.Logger.With().Str("folder", opts.Folder.Path).Logger()
	r := &Runner{
		folder:       opts.Folder,
		stateDir:     opts.StateDir,
		registry:     opts.Registry,
		store:        st,
		batcher:      batcher,
		debounce:     opts.Debounce,
		gate:         opts.Gate,
		startPaused:  opts.StartPaused,
		log:          log,
		onTransition: opts.OnTransition,
		state:        model.StateCreated,
		done:         make(chan struct{}),
		kick:         make(chan struct{}, 1),
		paused:       make(chan bool, 1),
	}
	r.scanner = &detect.Scanner{
		Include:  opts.Folder.Include,
		Exclude:  opts.Folder.Exclude,
		Supports: opts.Registry.Supports,
	}
	r.pipe = pipeline.New(pipeline.Options{
		Registry:  opts.Registry,
		Chunker:   chunker.New(opts.Chunking.TargetTokens),
		Embedder:  batcher,
		Store:     st,
		ModelName: provider.Name(),
		Dimension: provider.Dimension(),
		BatchSize: opts.BatchSize,
		Logger:    log,
	})
	r.pipe.OnProgress = func(p model.Progress) {
		r.mu.Lock()
		r.progress = p
		r.mu.Unlock()
	}
	return r, nil
}

// Start launches the folder's run loop. It returns immediately; progress is
// observable through State, Progress, and OnTransition.
func (r *Runner) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go r.batcher.Run(runCtx)
	go r.run(runCtx)
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	if err := r.store.Init(ctx); err != nil {
		r.fail(err)
		return
	}

	if r.startPaused {
		// A disabled folder never scans or indexes until it is resumed.
		r.setState(model.StatePaused)
		if !r.awaitResume(ctx) {
			return
		}
	}

	r.setState(model.StateScanning)
	r.setState(model.StateDetecting)
	r.setState(model.StateIndexing)
	if err := r.runPipeline(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.fail(err)
		return
	}
	r.setState(model.StateActive)
	r.setState(model.StateWatching)

	r.watch(ctx)
}

// awaitResume blocks a paused folder until Resume or shutdown. It reports
// whether the run loop should proceed.
func (r *Runner) awaitResume(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case p := <-r.paused:
			if !p {
				return true
			}
		}
	}
}

// runPipeline runs one indexing pass behind the shared concurrency gate.
func (r *Runner) runPipeline(ctx context.Context) error {
	if r.gate != nil {
		if err := r.gate.Acquire(ctx, 1); err != nil {
			return err
		}
		defer r.gate.Release(1)
	}
	_, err := r.pipe.Run(ctx, r.folder.Path, r.scanner)
	return err
}

// reindex runs one incremental pass from the watching or paused state.
func (r *Runner) reindex(ctx context.Context) {
	r.setState(model.StateIndexing)
	if err := r.runPipeline(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		// An incremental failure is logged, not terminal; the folder
		// stays serveable with its last good index.
		r.log.Error().Err(err).Msg("incremental index failed")
	}
	r.setState(model.StateActive)
	r.setState(model.StateWatching)
}

// Kick requests an incremental pass outside the debounce path.
func (r *Runner) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Pause suspends change processing; events accumulate but trigger nothing.
func (r *Runner) Pause() {
	select {
	case r.paused <- true:
	default:
	}
}

// Resume re-enables change processing and runs a catch-up pass.
func (r *Runner) Resume() {
	select {
	case r.paused <- false:
	default:
	}
}

// Stop tears the folder down: cancel work, drain, checkpoint, close, and
// optionally remove the state directory. Safe to call more than once.
func (r *Runner) Stop(ctx context.Context, removeState bool) error {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return nil
	}
	r.state = model.StateStopping
	cancel := r.cancel
	r.mu.Unlock()
	r.notify(model.StateStopping)

	if cancel != nil {
		cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := r.store.Close(); err != nil {
		r.fail(err)
		return err
	}
	if err := store.VerifyClosed(r.stateDir); err != nil {
		r.fail(err)
		return err
	}
	if removeState {
		if err := store.RemoveStateDir(ctx, r.stateDir); err != nil {
			r.fail(err)
			return err
		}
	}

	r.mu.Lock()
	r.state = model.StateStopped
	r.mu.Unlock()
	r.notify(model.StateStopped)
	return nil
}

// State returns the current lifecycle state.
func (r *Runner) State() model.FolderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastErr returns the failure that drove the folder into failed, if any.
func (r *Runner) LastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Progress returns the latest indexing progress snapshot.
func (r *Runner) Progress() model.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Store exposes the folder's store for the endpoint layer. Nil once the
// folder has stopped.
func (r *Runner) Store() *store.SQLiteStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return nil
	}
	return r.store
}

// Folder returns the folder's configuration.
func (r *Runner) Folder() config.FolderConfig {
	return r.folder
}

func (r *Runner) setState(to model.FolderState) {
	r.mu.Lock()
	from := r.state
	if from.Terminal() || from == model.StateStopping {
		r.mu.Unlock()
		return
	}
	if !legal(from, to) {
		r.mu.Unlock()
		r.log.Error().Str("from", string(from)).Str("to", string(to)).Msg("illegal state transition")
		return
	}
	r.state = to
	r.mu.Unlock()
	r.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state transition")
	r.notify(to)
}

func (r *Runner) notify(to model.FolderState) {
	if r.onTransition != nil {
		r.onTransition(to)
	}
}

func (r *Runner) fail(err error) {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return
	}
	r.state = model.StateFailed
	r.lastErr = err
	r.mu.Unlock()
	r.log.Error().Err(err).Msg("folder failed")
	r.notify(model.StateFailed)
}
