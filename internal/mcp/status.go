package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"foldermcp/internal/model"
)

func (h *Handler) listFolders(_ context.Context, _ json.RawMessage) Envelope {
	folders := h.orch.List()
	return successEnvelope(map[string]any{"folders": folders})
}

type listDocumentsParams struct {
	Folder       string `json:"folder"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
	Continuation string `json:"continuation,omitempty"`
}

type documentView struct {
	Name       string `json:"name"`
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
	Type       string `json:"document_type"`
	Modified   string `json:"modified"`
}

func (h *Handler) listDocuments(ctx context.Context, raw json.RawMessage) Envelope {
	var p listDocumentsParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	if p.Folder == "" {
		return errorFor(fmt.Errorf("%w: folder is required", model.ErrInvalidInput))
	}
	r, err := h.orch.Get(p.Folder)
	if err != nil {
		return errorFor(err)
	}
	st := r.Store()
	if st == nil {
		return errorFor(model.ErrStoreUnavailable)
	}

	docs, total, err := st.ListDocuments(ctx, chunkFetchLimit, 0)
	if err != nil {
		return errorFor(err)
	}
	views := make([]documentView, len(docs))
	for i, doc := range docs {
		views[i] = documentView{
			Name:       baseName(doc.RelPath),
			DocumentID: doc.ID,
			Path:       doc.RelPath,
			Type:       doc.ParserType,
			Modified:   time.Unix(doc.MTimeUnix, 0).UTC().Format(time.RFC3339),
		}
	}

	cursor := 0
	if p.Continuation != "" {
		token, err := decodeToken(p.Continuation, "list_documents", "")
		if err != nil {
			return errorFor(err)
		}
		cursor = token.Cursor
	}
	env := paged("documents", views, cursor, h.budget(p.MaxTokens),
		continuationToken{Endpoint: "list_documents"})
	env.Data["total"] = total
	return env
}

type embeddingParams struct {
	Text string `json:"text"`
}

func (h *Handler) getEmbedding(ctx context.Context, raw json.RawMessage) Envelope {
	var p embeddingParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	if p.Text == "" {
		return errorFor(fmt.Errorf("%w: text is required", model.ErrInvalidInput))
	}
	vectors, err := h.provider.Embed(ctx, []string{p.Text})
	if err != nil {
		return errorFor(err)
	}
	return successEnvelope(map[string]any{
		"embedding": vectors[0],
		"model":     h.provider.Name(),
		"dimension": h.provider.Dimension(),
	})
}

type statusParams struct {
	DocumentID string `json:"document_id,omitempty"`
}

func (h *Handler) getStatus(ctx context.Context, raw json.RawMessage) Envelope {
	var p statusParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	if p.DocumentID != "" {
		return h.documentStatus(ctx, p.DocumentID)
	}
	return h.aggregateStatus(ctx)
}

func (h *Handler) documentStatus(ctx context.Context, id string) Envelope {
	_, _, doc, err := h.findDocument(ctx, id)
	if err != nil {
		return errorFor(err)
	}
	status, progress := documentProgress(doc.Status)
	return successEnvelope(map[string]any{
		"status":   status,
		"progress": progress,
		"message":  fmt.Sprintf("document is %s", doc.Status),
	})
}

func documentProgress(s model.DocStatus) (string, float64) {
	switch s {
	case model.DocReady:
		return "ready", 100
	case model.DocFailed:
		return "error", 0
	case model.DocEmbedding:
		return "processing", 75
	case model.DocChunking:
		return "processing", 50
	case model.DocParsing:
		return "processing", 25
	default:
		return "processing", 10
	}
}

// aggregateStatus folds document readiness across every registered folder.
// Progress is weighted by document count so it never regresses as folders
// finish in different orders.
func (h *Handler) aggregateStatus(ctx context.Context) Envelope {
	var agg model.AggregateStatus
	anyIndexing := false
	anyFailed := false
	for _, r := range h.orch.Runners() {
		switch r.State() {
		case model.StateCreated, model.StateScanning, model.StateDetecting, model.StateIndexing:
			anyIndexing = true
		case model.StateFailed:
			anyFailed = true
		}
		st := r.Store()
		if st == nil {
			continue
		}
		one, err := st.AggregateStatus(ctx)
		if err != nil {
			continue
		}
		agg.Total += one.Total
		agg.Ready += one.Ready
		agg.Failed += one.Failed
		agg.Pending += one.Pending
	}

	status, progress, msg := summarizeAggregate(anyIndexing, anyFailed, agg)
	return successEnvelope(map[string]any{
		"status":   status,
		"progress": progress,
		"message":  msg,
		"documents": map[string]int64{
			"total":   agg.Total,
			"ready":   agg.Ready,
			"failed":  agg.Failed,
			"pending": agg.Pending,
		},
	})
}

// summarizeAggregate maps folder activity and document counts to the
// aggregate status row. While folders are still scanning and no documents
// have been discovered, progress is 0, not 100; 100 with an empty store means
// nothing ever needed indexing.
func summarizeAggregate(anyIndexing, anyFailed bool, agg model.AggregateStatus) (status string, progress float64, msg string) {
	switch {
	case agg.Total > 0:
		progress = 100 * float64(agg.Ready+agg.Failed) / float64(agg.Total)
	case !anyIndexing:
		progress = 100
	}

	status = "ready"
	msg = "all folders indexed"
	switch {
	case anyIndexing || agg.Pending > 0:
		status = "processing"
		msg = fmt.Sprintf("%d of %d documents indexed", agg.Ready, agg.Total)
	case anyFailed:
		status = "error"
		msg = "one or more folders failed"
	case agg.Failed > 0:
		msg = fmt.Sprintf("all folders indexed, %d documents failed", agg.Failed)
	}
	return status, progress, msg
}
