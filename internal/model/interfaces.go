package model

import "context"

// Parser is the closed capability interface a document parser implements.
type Parser interface {
	Parse(ctx context.Context, absPath string) (ParsedDocument, error)
	Supports(extension string) bool
	Extensions() []string
	Type() string
}

// Store is the embedding store owned by each folder. It is the single writer
// of persisted rows; callers never touch its files directly.
type Store interface {
	Init(ctx context.Context) error
	UpsertDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	GetDocumentByPath(ctx context.Context, relPath string) (Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]Document, int64, error)
	DeleteDocument(ctx context.Context, id string) error
	UpsertChunks(ctx context.Context, docID string, chunks []Chunk) error
	UpsertEmbeddings(ctx context.Context, rows []Embedding) error
	CommitDocument(ctx context.Context, docID string, chunks []Chunk, embeddings []Embedding, outline Outline) error
	MarkDocumentStatus(ctx context.Context, id string, status DocStatus) error
	SetDocumentOutline(ctx context.Context, id string, outline Outline) error
	SimilaritySearch(ctx context.Context, query []float32, k int, filters SearchFilters) ([]SearchHit, error)
	GetDocumentOutline(ctx context.Context, id string) (Outline, error)
	IterateChunks(ctx context.Context, docID string, limit, offset int) ([]Chunk, error)
	LoadSnapshot(ctx context.Context) (map[string]FileStat, error)
	SaveSnapshot(ctx context.Context, stats map[string]FileStat) error
	AggregateStatus(ctx context.Context) (AggregateStatus, error)
	Checkpoint(ctx context.Context) error
	Close() error
}

// EmbeddingProvider turns batches of text into fixed-dimension vectors.
type EmbeddingProvider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits a parsed document into bounded semantic chunks.
type Chunker interface {
	Chunk(doc ParsedDocument, documentID string) ([]Chunk, error)
}
