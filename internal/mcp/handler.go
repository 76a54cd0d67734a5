package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"foldermcp/internal/lifecycle"
	"foldermcp/internal/model"
	"foldermcp/internal/orchestrator"
	"foldermcp/internal/store"
)

// DefaultMaxTokens bounds response payloads when the request does not set
// max_tokens.
const DefaultMaxTokens = 2000

// chunkFetchLimit is the per-document ceiling when reconstructing content
// from chunks.
const chunkFetchLimit = 100000

type Handler struct {
	orch        *orchestrator.Orchestrator
	provider    model.EmbeddingProvider
	maxTokens   int
	development bool
	log         zerolog.Logger
}

type HandlerOptions struct {
	Orchestrator *orchestrator.Orchestrator
	Provider     model.EmbeddingProvider
	MaxTokens    int
	Development  bool
	Logger       zerolog.Logger
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Handler{
		orch:        opts.Orchestrator,
		provider:    opts.Provider,
		maxTokens:   opts.MaxTokens,
		development: opts.Development,
		log:         opts.Logger,
	}
}

// Dispatch routes one endpoint call. The second return value is false when
// the method does not exist.
func (h *Handler) Dispatch(ctx context.Context, method string, params json.RawMessage) (Envelope, bool) {
	var env Envelope
	switch method {
	case "search":
		env = h.search(ctx, params)
	case "get_document_outline":
		env = h.getDocumentOutline(ctx, params)
	case "get_document_data":
		env = h.getDocumentData(ctx, params)
	case "get_pages":
		env = h.getPages(ctx, params)
	case "get_slides":
		env = h.getSlides(ctx, params)
	case "get_sheet_data":
		env = h.getSheetData(ctx, params)
	case "list_folders":
		env = h.listFolders(ctx, params)
	case "list_documents":
		env = h.listDocuments(ctx, params)
	case "get_embedding":
		env = h.getEmbedding(ctx, params)
	case "get_status":
		env = h.getStatus(ctx, params)
	default:
		return Envelope{}, false
	}
	if h.development && env.Status.Code == codeError {
		h.log.Debug().Str("method", method).Str("message", env.Status.Message).
			RawJSON("params", nonNil(params)).Msg("endpoint error")
	}
	return finalize(env), true
}

func nonNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) budget(maxTokens int) int {
	if maxTokens <= 0 {
		return h.maxTokens
	}
	return maxTokens
}

// findDocument locates a document id across every active folder.
func (h *Handler) findDocument(ctx context.Context, id string) (*lifecycle.Runner, *store.SQLiteStore, model.Document, error) {
	if id == "" {
		return nil, nil, model.Document{}, fmt.Errorf("%w: document_id is required", model.ErrInvalidInput)
	}
	for _, r := range h.orch.Runners() {
		st := r.Store()
		if st == nil {
			continue
		}
		doc, err := st.GetDocument(ctx, id)
		if err == nil {
			return r, st, doc, nil
		}
	}
	return nil, nil, model.Document{}, fmt.Errorf("%w: document %s", model.ErrNotFound, id)
}

// paginate walks items from cursor, including whole items while they fit the
// budget. The first item of a page is always included; overflow reports that
// it alone exceeded the budget.
func paginate[T any](items []T, cursor, maxTokens int) (page []T, next int, hasMore, overflow bool) {
	if cursor > len(items) {
		cursor = len(items)
	}
	used := 0
	next = cursor
	for next < len(items) {
		t := tokenCount(items[next])
		if len(page) > 0 && used+t > maxTokens {
			break
		}
		if len(page) == 0 && t > maxTokens {
			overflow = true
		}
		page = append(page, items[next])
		used += t
		next++
		if overflow {
			break
		}
	}
	hasMore = next < len(items)
	return page, next, hasMore, overflow
}

// paged assembles the shared envelope shape for a paginated list endpoint.
func paged[T any](key string, items []T, cursor, maxTokens int, token continuationToken) Envelope {
	page, next, hasMore, overflow := paginate(items, cursor, maxTokens)
	if page == nil {
		page = []T{}
	}
	env := successEnvelope(map[string]any{key: page})
	if overflow {
		env.Status.Code = codePartialSuccess
		env.Status.Message = msgTokenLimitExceeded
	}
	if hasMore {
		token.Cursor = next
		env.Continuation = Continuation{HasMore: true, Token: encodeToken(token)}
	}
	return env
}
