package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// FolderState is the lifecycle state of a monitored folder.
type FolderState string

const (
	StateCreated   FolderState = "created"
	StateScanning  FolderState = "scanning"
	StateDetecting FolderState = "detecting"
	StateIndexing  FolderState = "indexing"
	StateActive    FolderState = "active"
	StateWatching  FolderState = "watching"
	StatePaused    FolderState = "paused"
	StateStopping  FolderState = "stopping"
	StateStopped   FolderState = "stopped"
	StateFailed    FolderState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s FolderState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// DocStatus tracks a document through the indexing pipeline.
type DocStatus string

const (
	DocPending   DocStatus = "pending"
	DocParsing   DocStatus = "parsing"
	DocChunking  DocStatus = "chunking"
	DocEmbedding DocStatus = "embedding"
	DocReady     DocStatus = "ready"
	DocFailed    DocStatus = "failed"
)

// Folder is one configured, monitored directory.
type Folder struct {
	Path    string
	Name    string
	Enabled bool
	Backend string
	Model   string
	State   FolderState
}

// Document is one parsed file belonging to exactly one folder. ID is derived
// from the canonical relative path so re-scans are stable.
type Document struct {
	ID          string
	FolderPath  string
	RelPath     string
	AbsPath     string
	ContentHash string
	SizeBytes   int64
	MTimeUnix   int64
	ParserType  string
	Status      DocStatus
	CreatedUnix int64
	UpdatedUnix int64
}

// DocumentID derives the stable identifier for a document from its canonical
// relative path.
func DocumentID(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:16])
}

// Location pins a chunk (or endpoint result) to a position inside its parent
// document. Kind selects which fields are meaningful.
type Location struct {
	Kind      string `json:"kind"`
	Page      int    `json:"page,omitempty"`
	Slide     int    `json:"slide,omitempty"`
	Sheet     string `json:"sheet,omitempty"`
	Range     string `json:"range,omitempty"`
	StartLine int    `json:"line_start,omitempty"`
	EndLine   int    `json:"line_end,omitempty"`
}

const (
	LocationLines = "lines"
	LocationPage  = "page"
	LocationSlide = "slide"
	LocationSheet = "sheet"
)

// SemanticMetadata is the canonical per-chunk semantic record. Every chunk
// carries a non-nil value; DefaultSemanticMetadata fills the blanks.
type SemanticMetadata struct {
	SectionPath []string `json:"section_path,omitempty"`
	Heading     string   `json:"heading,omitempty"`
	Language    string   `json:"language,omitempty"`
	Kind        string   `json:"kind"`
}

const (
	ChunkKindProse = "prose"
	ChunkKindCode  = "code"
	ChunkKindTable = "table"
)

// DefaultSemanticMetadata returns a usable record when a chunker has nothing
// better to report.
func DefaultSemanticMetadata() SemanticMetadata {
	return SemanticMetadata{Kind: ChunkKindProse}
}

// Chunk is an ordered subrange of a document's textual content.
type Chunk struct {
	ID          string
	DocumentID  string
	Ordinal     int
	Text        string
	TokenCount  int
	ContentHash string
	Location    Location
	Semantic    SemanticMetadata
}

// ChunkID derives a stable chunk identifier from the parent document, the
// ordinal, and the normalized content hash.
func ChunkID(documentID string, ordinal int, contentHash string) string {
	sum := sha256.Sum256([]byte(documentID + "\x00" + strconv.Itoa(ordinal) + "\x00" + contentHash))
	return hex.EncodeToString(sum[:16])
}

// Embedding is the fixed-dimension vector bound 1:1 to a chunk.
type Embedding struct {
	ChunkID   string
	Model     string
	Dimension int
	Vector    []float32
}

// FileStat is a lightweight filesystem observation used by scanning and the
// change detector.
type FileStat struct {
	RelPath     string
	AbsPath     string
	SizeBytes   int64
	MTimeUnix   int64
	ContentHash string
}

// ChangeSet is the classified diff between the current filesystem snapshot
// and the last persisted one. The four path sets are disjoint.
type ChangeSet struct {
	New       []string
	Modified  []string
	Deleted   []string
	Unchanged []string
	Summary   ChangeSummary
}

type ChangeSummary struct {
	TotalChanges        int   `json:"total_changes"`
	EstimatedCostBytes  int64 `json:"estimated_cost"`
	RequiresFullReindex bool  `json:"requires_full_reindex"`
}

// SearchHit is one similarity-search result.
type SearchHit struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Ordinal    int      `json:"-"`
	Score      float64  `json:"score"`
	Location   Location `json:"location"`
	Preview    string   `json:"preview"`
}

// SearchFilters narrows similarity search to a folder or file type.
type SearchFilters struct {
	FolderPath string
	FileType   string
}

// Progress is the pipeline's periodic snapshot of indexing work.
type Progress struct {
	JobID           string  `json:"job_id"`
	TotalFiles      int     `json:"total_files"`
	ProcessedFiles  int     `json:"processed_files"`
	TotalChunks     int     `json:"total_chunks"`
	ProcessedChunks int     `json:"processed_chunks"`
	Percentage      float64 `json:"percentage"`
}

// AggregateStatus summarizes document readiness for get_status.
type AggregateStatus struct {
	Total   int64
	Ready   int64
	Failed  int64
	Pending int64
}
