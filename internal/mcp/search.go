package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"foldermcp/internal/lifecycle"
	"foldermcp/internal/model"
	"foldermcp/internal/store"
)

// maxRegexScanChunks caps how many chunks a single regex search may scan
// before it is declared too expensive.
const maxRegexScanChunks = 20000

// searchTopK bounds the ranked candidate list before budget trimming.
const searchTopK = 50

type searchFilters struct {
	Folder   string `json:"folder,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

type searchParams struct {
	Query        string        `json:"query"`
	Mode         string        `json:"mode,omitempty"`
	Scope        string        `json:"scope,omitempty"`
	Filters      searchFilters `json:"filters,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	Continuation string        `json:"continuation,omitempty"`
}

type searchResult struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Score      float64        `json:"score"`
	Preview    string         `json:"preview"`
	Location   model.Location `json:"location"`
	Context    searchContext  `json:"context"`
	Metadata   map[string]any `json:"metadata"`

	ordinal int
}

type searchContext struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

func (h *Handler) search(ctx context.Context, raw json.RawMessage) Envelope {
	var p searchParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	if strings.TrimSpace(p.Query) == "" {
		return errorFor(fmt.Errorf("%w: query is required", model.ErrInvalidInput))
	}
	mode := p.Mode
	if mode == "" {
		mode = "semantic"
	}

	cursor := 0
	if p.Continuation != "" {
		token, err := decodeToken(p.Continuation, "search", "")
		if err != nil {
			return errorFor(err)
		}
		cursor = token.Cursor
	}

	runners, err := h.searchTargets(p.Filters.Folder)
	if err != nil {
		return errorFor(err)
	}

	var results []searchResult
	switch mode {
	case "semantic":
		results, err = h.semanticSearch(ctx, runners, p)
	case "regex":
		results, err = h.regexSearch(ctx, runners, p)
	default:
		err = fmt.Errorf("%w: unknown search mode %q", model.ErrInvalidInput, mode)
	}
	if err != nil {
		return errorFor(err)
	}

	if p.Scope == "documents" {
		results = bestPerDocument(results)
	}
	sortResults(results)
	if len(results) > searchTopK {
		results = results[:searchTopK]
	}

	return paged("results", results, cursor, h.budget(p.MaxTokens),
		continuationToken{Endpoint: "search"})
}

// searchTargets resolves the folder filter to the set of runners to query.
func (h *Handler) searchTargets(folder string) ([]*lifecycle.Runner, error) {
	if folder == "" {
		return h.orch.Runners(), nil
	}
	r, err := h.orch.Get(folder)
	if err != nil {
		return nil, err
	}
	return []*lifecycle.Runner{r}, nil
}

func (h *Handler) semanticSearch(ctx context.Context, runners []*lifecycle.Runner, p searchParams) ([]searchResult, error) {
	vectors, err := h.provider.Embed(ctx, []string{p.Query})
	if err != nil {
		return nil, err
	}

	var out []searchResult
	for _, r := range runners {
		st := r.Store()
		if st == nil {
			continue
		}
		hits, err := st.SimilaritySearch(ctx, vectors[0], searchTopK,
			model.SearchFilters{FileType: p.Filters.FileType})
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			out = append(out, h.resultFromHit(ctx, st, r, hit))
		}
	}
	return out, nil
}

func (h *Handler) resultFromHit(ctx context.Context, st *store.SQLiteStore, r *lifecycle.Runner, hit model.SearchHit) searchResult {
	res := searchResult{
		DocumentID: hit.DocumentID,
		ChunkID:    hit.ChunkID,
		Score:      hit.Score,
		Preview:    hit.Preview,
		Location:   hit.Location,
		Metadata:   map[string]any{"folder": r.Folder().Path},
		ordinal:    hit.Ordinal,
	}
	if doc, err := st.GetDocument(ctx, hit.DocumentID); err == nil {
		res.Metadata["document_type"] = doc.ParserType
		res.Metadata["rel_path"] = doc.RelPath
	}
	res.Context = neighborContext(ctx, st, hit.DocumentID, hit.Ordinal)
	return res
}

// neighborContext fetches short previews of the adjacent chunks.
func neighborContext(ctx context.Context, st *store.SQLiteStore, docID string, ordinal int) searchContext {
	var sc searchContext
	if ordinal > 0 {
		if prev, err := st.IterateChunks(ctx, docID, 1, ordinal-1); err == nil && len(prev) == 1 {
			sc.Before = tail(prev[0].Text, 120)
		}
	}
	if next, err := st.IterateChunks(ctx, docID, 1, ordinal+1); err == nil && len(next) == 1 {
		sc.After = head(next[0].Text, 120)
	}
	return sc
}

func (h *Handler) regexSearch(ctx context.Context, runners []*lifecycle.Runner, p searchParams) ([]searchResult, error) {
	re, err := regexp.Compile(p.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	scanned := 0
	var out []searchResult
	for _, r := range runners {
		st := r.Store()
		if st == nil {
			continue
		}
		docs, _, err := st.ListDocuments(ctx, chunkFetchLimit, 0)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: regex scan exceeded the request deadline", model.ErrPatternTooExpensive)
			}
			if p.Filters.FileType != "" && doc.ParserType != p.Filters.FileType &&
				!strings.HasSuffix(doc.RelPath, "."+strings.TrimPrefix(p.Filters.FileType, ".")) {
				continue
			}
			chunks, err := st.IterateChunks(ctx, doc.ID, chunkFetchLimit, 0)
			if err != nil {
				return nil, err
			}
			for _, ch := range chunks {
				scanned++
				if scanned > maxRegexScanChunks {
					return nil, fmt.Errorf("%w: scanned over %d chunks", model.ErrPatternTooExpensive, maxRegexScanChunks)
				}
				loc := re.FindStringIndex(ch.Text)
				if loc == nil {
					continue
				}
				out = append(out, searchResult{
					DocumentID: doc.ID,
					ChunkID:    ch.ID,
					Score:      1,
					Preview:    matchSnippet(ch.Text, loc[0], loc[1]),
					Location:   ch.Location,
					Context:    neighborContext(ctx, st, doc.ID, ch.Ordinal),
					Metadata: map[string]any{
						"folder":        r.Folder().Path,
						"document_type": doc.ParserType,
						"rel_path":      doc.RelPath,
					},
					ordinal: ch.Ordinal,
				})
			}
		}
	}
	return out, nil
}

// matchSnippet excerpts the line-ish region around a regex match.
func matchSnippet(text string, start, end int) string {
	lo := strings.LastIndexByte(text[:start], '\n') + 1
	hi := end
	if idx := strings.IndexByte(text[end:], '\n'); idx >= 0 {
		hi = end + idx
	} else {
		hi = len(text)
	}
	return head(text[lo:hi], 200)
}

func bestPerDocument(results []searchResult) []searchResult {
	best := make(map[string]searchResult)
	for _, res := range results {
		cur, ok := best[res.DocumentID]
		if !ok || res.Score > cur.Score {
			best[res.DocumentID] = res
		}
	}
	out := make([]searchResult, 0, len(best))
	for _, res := range best {
		out = append(out, res)
	}
	return out
}

func sortResults(results []searchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ordinal < results[j].ordinal
	})
}

func head(s string, runes int) string {
	r := []rune(s)
	if len(r) <= runes {
		return s
	}
	return string(r[:runes])
}

func tail(s string, runes int) string {
	r := []rune(s)
	if len(r) <= runes {
		return s
	}
	return string(r[len(r)-runes:])
}
