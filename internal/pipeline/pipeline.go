// Package pipeline runs the indexing passes for one folder: detect changes,
// parse, chunk, embed, persist. A failed document never fails the folder;
// only cancellation and store-level failures abort a run.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"foldermcp/internal/chunker"
	"foldermcp/internal/detect"
	"foldermcp/internal/model"
	"foldermcp/internal/parser"
)

// progressInterval is the minimum spacing between progress callbacks; the
// final snapshot always fires.
const progressInterval = 500 * time.Millisecond

// Embedder is the batching surface the pipeline embeds through. Both the
// embed.Batcher and a raw provider satisfy it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// MetaStore is model.Store plus the folder metadata the pipeline records.
type MetaStore interface {
	model.Store
	SetEmbeddingModel(ctx context.Context, name string, dimension int) error
}

type Pipeline struct {
	registry  *parser.Registry
	chunker   model.Chunker
	embedder  Embedder
	store     MetaStore
	modelName string
	dimension int
	batchSize int
	log       zerolog.Logger

	// OnProgress, when set, receives throttled progress snapshots.
	OnProgress func(model.Progress)
}

type Options struct {
	Registry  *parser.Registry
	Chunker   model.Chunker
	Embedder  Embedder
	Store     MetaStore
	ModelName string
	Dimension int
	BatchSize int
	Logger    zerolog.Logger
}

func New(opts Options) *Pipeline {
	if opts.Chunker == nil {
		opts.Chunker = chunker.New(chunker.DefaultTargetTokens)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Pipeline{
		registry:  opts.Registry,
		chunker:   opts.Chunker,
		embedder:  opts.Embedder,
		store:     opts.Store,
		modelName: opts.ModelName,
		dimension: opts.Dimension,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
	}
}

// Result summarizes one indexing run.
type Result struct {
	Changes  model.ChangeSummary
	Progress model.Progress
	Failed   int
}

// Run performs one full detect-and-index pass over root using scanner.
// It is idempotent: running twice against an unchanged tree does no
// re-parsing and no re-embedding.
func (p *Pipeline) Run(ctx context.Context, root string, scanner *detect.Scanner) (Result, error) {
	jobID := uuid.NewString()
	log := p.log.With().Str("job_id", jobID).Str("root", root).Logger()

	previous, err := p.store.LoadSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	current, err := scanner.Scan(ctx, root)
	if err != nil {
		return Result{}, err
	}
	changes, enriched, err := detect.Detect(ctx, current, previous)
	if err != nil {
		return Result{}, err
	}
	log.Info().
		Int("new", len(changes.New)).
		Int("modified", len(changes.Modified)).
		Int("deleted", len(changes.Deleted)).
		Int("unchanged", len(changes.Unchanged)).
		Msg("change detection complete")

	statByPath := make(map[string]model.FileStat, len(enriched))
	for _, st := range enriched {
		statByPath[st.RelPath] = st
	}

	work := append(append([]string{}, changes.New...), changes.Modified...)
	tracker := &progressTracker{
		progress: model.Progress{JobID: jobID, TotalFiles: len(work)},
		emit:     p.OnProgress,
	}

	failed := 0
	for _, relPath := range work {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		stat, ok := statByPath[relPath]
		if !ok {
			continue
		}
		if err := p.processFile(ctx, stat, tracker); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			failed++
			log.Warn().Err(err).Str("rel_path", relPath).Msg("document failed")
		}
		tracker.fileDone()
	}

	for _, relPath := range changes.Deleted {
		id := model.DocumentID(relPath)
		if err := p.store.DeleteDocument(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
			return Result{}, err
		}
	}

	if err := p.store.SaveSnapshot(ctx, detect.Snapshot(enriched)); err != nil {
		return Result{}, err
	}
	if err := p.store.SetEmbeddingModel(ctx, p.modelName, p.dimension); err != nil {
		return Result{}, err
	}

	tracker.finish()
	log.Info().
		Int("processed", tracker.progress.ProcessedFiles).
		Int("failed", failed).
		Int("chunks", tracker.progress.ProcessedChunks).
		Msg("index run complete")
	return Result{Changes: changes.Summary, Progress: tracker.progress, Failed: failed}, nil
}

// processFile indexes one new or modified file end to end. Errors mark the
// document failed and are reported, not fatal.
func (p *Pipeline) processFile(ctx context.Context, stat model.FileStat, tracker *progressTracker) error {
	docID := model.DocumentID(stat.RelPath)
	doc := model.Document{
		ID:          docID,
		RelPath:     stat.RelPath,
		AbsPath:     stat.AbsPath,
		ContentHash: stat.ContentHash,
		SizeBytes:   stat.SizeBytes,
		MTimeUnix:   stat.MTimeUnix,
		Status:      model.DocParsing,
	}
	if err := p.store.UpsertDocument(ctx, doc); err != nil {
		return err
	}

	fail := func(err error) error {
		if markErr := p.store.MarkDocumentStatus(ctx, docID, model.DocFailed); markErr != nil {
			p.log.Error().Err(markErr).Str("doc_id", docID).Msg("could not mark document failed")
		}
		return err
	}

	parsed, err := p.registry.Parse(ctx, stat.AbsPath)
	if err != nil {
		return fail(err)
	}
	doc.ParserType = parsed.Meta.ParserType
	doc.Status = model.DocChunking
	if err := p.store.UpsertDocument(ctx, doc); err != nil {
		return err
	}

	chunks, err := p.chunker.Chunk(parsed, docID)
	if err != nil {
		return fail(err)
	}
	tracker.addChunks(len(chunks))

	if err := p.store.MarkDocumentStatus(ctx, docID, model.DocEmbedding); err != nil {
		return err
	}
	embeddings, err := p.embedChunks(ctx, chunks, tracker)
	if err != nil {
		return fail(err)
	}

	// One transaction: chunks, embeddings, outline, and the ready flip land
	// together or not at all.
	return p.store.CommitDocument(ctx, docID, chunks, embeddings, parsed.Outline())
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []model.Chunk, tracker *progressTracker) ([]model.Embedding, error) {
	rows := make([]model.Embedding, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}

		for i, ch := range batch {
			rows = append(rows, model.Embedding{
				ChunkID:   ch.ID,
				Model:     p.modelName,
				Dimension: len(vectors[i]),
				Vector:    vectors[i],
			})
		}
		tracker.chunksDone(len(batch))
	}
	return rows, nil
}

// progressTracker throttles progress callbacks to progressInterval.
type progressTracker struct {
	progress model.Progress
	emit     func(model.Progress)
	lastEmit time.Time
}

func (t *progressTracker) fileDone() {
	t.progress.ProcessedFiles++
	t.maybeEmit(false)
}

func (t *progressTracker) addChunks(n int) {
	t.progress.TotalChunks += n
}

func (t *progressTracker) chunksDone(n int) {
	t.progress.ProcessedChunks += n
	t.maybeEmit(false)
}

func (t *progressTracker) finish() {
	t.progress.Percentage = 100
	t.maybeEmit(true)
}

func (t *progressTracker) maybeEmit(force bool) {
	if t.progress.TotalFiles > 0 && !force {
		t.progress.Percentage = float64(t.progress.ProcessedFiles) / float64(t.progress.TotalFiles) * 100
	}
	if t.emit == nil {
		return
	}
	if !force && time.Since(t.lastEmit) < progressInterval {
		return
	}
	t.lastEmit = time.Now()
	t.emit(t.progress)
}
