package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"foldermcp/internal/chunker"
	"foldermcp/internal/detect"
	"foldermcp/internal/embed"
	"foldermcp/internal/model"
	"foldermcp/internal/parser"
	"foldermcp/internal/store"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newPipeline(t *testing.T) (*Pipeline, *store.SQLiteStore, *detect.Scanner) {
	t.Helper()
	s := store.NewSQLiteStore(store.DBPath(t.TempDir()))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	registry := parser.NewRegistry()
	registry.Seal()
	provider := embed.NewHashProvider()

	p := New(Options{
		Registry:  registry,
		Chunker:   chunker.New(50),
		Embedder:  provider,
		Store:     s,
		ModelName: provider.Name(),
		Dimension: provider.Dimension(),
		Logger:    zerolog.Nop(),
	})
	scanner := &detect.Scanner{Supports: registry.Supports}
	return p, s, scanner
}

func TestRunIndexesFolder(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "Some notes about apples and oranges.")
	writeFile(t, root, "sub/readme.md", "# Title\n\nBody of the readme.\n")

	p, s, scanner := newPipeline(t)
	res, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)
	require.Equal(t, 2, res.Changes.TotalChanges)
	require.True(t, res.Changes.RequiresFullReindex)
	require.Zero(t, res.Failed)

	docs, total, err := s.ListDocuments(ctx, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	for _, d := range docs {
		require.Equal(t, model.DocReady, d.Status)
		require.NotEmpty(t, d.ContentHash)
	}

	// embeddings are searchable with the same provider
	provider := embed.NewHashProvider()
	qv, err := provider.Embed(ctx, []string{"apples"})
	require.NoError(t, err)
	hits, err := s.SimilaritySearch(ctx, qv[0], 5, model.SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	name, dim, err := s.EmbeddingModel(ctx)
	require.NoError(t, err)
	require.Equal(t, provider.Name(), name)
	require.Equal(t, provider.Dimension(), dim)
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "unchanging content")

	p, s, scanner := newPipeline(t)
	_, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)

	before, err := s.IterateChunks(ctx, model.DocumentID("a.txt"), 100, 0)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	res, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)
	require.Zero(t, res.Changes.TotalChanges)
	require.False(t, res.Changes.RequiresFullReindex)

	after, err := s.IterateChunks(ctx, model.DocumentID("a.txt"), 100, 0)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRunPicksUpEdits(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "first version")

	p, s, scanner := newPipeline(t)
	_, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)

	writeFile(t, root, "a.txt", "second version, noticeably longer than before")
	res, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)
	require.Equal(t, 1, res.Changes.TotalChanges)

	doc, err := s.GetDocumentByPath(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, model.DocReady, doc.Status)
	chunks, err := s.IterateChunks(ctx, doc.ID, 100, 0)
	require.NoError(t, err)
	require.Contains(t, chunks[0].Text, "second version")
}

func TestRunRemovesDeletedDocuments(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "keep me")
	writeFile(t, root, "drop.txt", "drop me")

	p, s, scanner := newPipeline(t)
	_, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "drop.txt")))
	_, err = p.Run(ctx, root, scanner)
	require.NoError(t, err)

	_, err = s.GetDocumentByPath(ctx, "drop.txt")
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.GetDocumentByPath(ctx, "keep.txt")
	require.NoError(t, err)
}

func TestFailedDocumentDoesNotFailRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "good.txt", "fine content")
	writeFile(t, root, "bad.csv", "a,\"unterminated\n")

	p, s, scanner := newPipeline(t)
	res, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)

	good, err := s.GetDocumentByPath(ctx, "good.txt")
	require.NoError(t, err)
	require.Equal(t, model.DocReady, good.Status)

	bad, err := s.GetDocumentByPath(ctx, "bad.csv")
	require.NoError(t, err)
	require.Equal(t, model.DocFailed, bad.Status)
}

func TestRunRecordsOutline(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "notes.md", "# Title\n\nBody line.\n")
	writeFile(t, root, "customers.csv", "name,city\nada,london\n")

	p, s, scanner := newPipeline(t)
	_, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)

	outline, err := s.GetDocumentOutline(ctx, model.DocumentID("notes.md"))
	require.NoError(t, err)
	require.Equal(t, model.OutlineText, outline.Kind)
	require.Equal(t, 3, outline.Lines)
	require.Equal(t, []model.HeadingInfo{{Title: "Title", Line: 1}}, outline.Headings)

	outline, err = s.GetDocumentOutline(ctx, model.DocumentID("customers.csv"))
	require.NoError(t, err)
	require.Equal(t, model.OutlineSheets, outline.Kind)
	require.Equal(t, 1, outline.TotalRows)
	require.Equal(t, []model.SheetInfo{{Name: "", Rows: 1, Columns: 2}}, outline.Sheets)
}

func TestRunEmitsProgress(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "some content here")

	p, _, scanner := newPipeline(t)
	var snapshots []model.Progress
	p.OnProgress = func(pr model.Progress) { snapshots = append(snapshots, pr) }

	_, err := p.Run(ctx, root, scanner)
	require.NoError(t, err)
	require.NotEmpty(t, snapshots)
	final := snapshots[len(snapshots)-1]
	require.Equal(t, float64(100), final.Percentage)
	require.Equal(t, 1, final.ProcessedFiles)
	require.NotEmpty(t, final.JobID)
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "content")

	p, _, scanner := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, root, scanner)
	require.Error(t, err)
}
