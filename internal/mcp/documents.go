package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"foldermcp/internal/model"
)

type documentParams struct {
	DocumentID   string `json:"document_id"`
	Format       string `json:"format,omitempty"`
	PageRange    string `json:"page_range,omitempty"`
	SlideNumbers string `json:"slide_numbers,omitempty"`
	SheetName    string `json:"sheet_name,omitempty"`
	CellRange    string `json:"cell_range,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
	Continuation string `json:"continuation,omitempty"`
}

func (h *Handler) getDocumentOutline(ctx context.Context, raw json.RawMessage) Envelope {
	var p documentParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	_, st, doc, err := h.findDocument(ctx, p.DocumentID)
	if err != nil {
		return errorFor(err)
	}
	outline, err := st.GetDocumentOutline(ctx, doc.ID)
	if err != nil {
		return errorFor(err)
	}
	return successEnvelope(map[string]any{"outline": outline})
}

func (h *Handler) getDocumentData(ctx context.Context, raw json.RawMessage) Envelope {
	var p documentParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	format := p.Format
	if format == "" {
		format = "raw"
	}
	_, st, doc, err := h.findDocument(ctx, p.DocumentID)
	if err != nil {
		return errorFor(err)
	}

	switch format {
	case "metadata":
		return successEnvelope(map[string]any{
			"name":          baseName(doc.RelPath),
			"path":          doc.RelPath,
			"document_type": doc.ParserType,
			"size_bytes":    doc.SizeBytes,
			"modified":      doc.MTimeUnix,
			"content_hash":  doc.ContentHash,
			"status":        doc.Status,
		})

	case "raw":
		chunks, err := st.IterateChunks(ctx, doc.ID, chunkFetchLimit, 0)
		if err != nil {
			return errorFor(err)
		}
		var b strings.Builder
		for _, ch := range chunks {
			b.WriteString(ch.Text)
		}
		content := b.String()
		env := successEnvelope(map[string]any{"content": content})
		if tokenCount(content) > h.budget(p.MaxTokens) {
			env.Status.Code = codePartialSuccess
			env.Status.Message = msgTokenLimitExceeded
		}
		return env

	case "chunks":
		chunks, err := st.IterateChunks(ctx, doc.ID, chunkFetchLimit, 0)
		if err != nil {
			return errorFor(err)
		}
		cursor := 0
		if p.Continuation != "" {
			token, err := decodeToken(p.Continuation, "get_document_data", doc.ID)
			if err != nil {
				return errorFor(err)
			}
			cursor = token.Cursor
		}
		type chunkView struct {
			ChunkID  string         `json:"chunk_id"`
			Content  string         `json:"content"`
			Metadata map[string]any `json:"metadata"`
		}
		views := make([]chunkView, len(chunks))
		for i, ch := range chunks {
			views[i] = chunkView{
				ChunkID: ch.ID,
				Content: ch.Text,
				Metadata: map[string]any{
					"ordinal":  ch.Ordinal,
					"location": ch.Location,
					"semantic": ch.Semantic,
				},
			}
		}
		return paged("chunks", views, cursor, h.budget(p.MaxTokens),
			continuationToken{Endpoint: "get_document_data", DocumentID: doc.ID})

	default:
		return errorFor(fmt.Errorf("%w: unknown format %q", model.ErrInvalidInput, format))
	}
}

type pageView struct {
	PageNumber int    `json:"page_number"`
	Content    string `json:"content"`
}

func (h *Handler) getPages(ctx context.Context, raw json.RawMessage) Envelope {
	var p documentParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	_, st, doc, err := h.findDocument(ctx, p.DocumentID)
	if err != nil {
		return errorFor(err)
	}
	chunks, err := st.IterateChunks(ctx, doc.ID, chunkFetchLimit, 0)
	if err != nil {
		return errorFor(err)
	}

	content := map[int]*strings.Builder{}
	for _, ch := range chunks {
		page := ch.Location.Page
		if ch.Location.Kind != model.LocationPage {
			// non-paginated documents read as a single page
			page = 1
		}
		if content[page] == nil {
			content[page] = &strings.Builder{}
		}
		content[page].WriteString(ch.Text)
	}
	total := 0
	for n := range content {
		if n > total {
			total = n
		}
	}

	selected, err := parseRange(p.PageRange, total)
	if err != nil {
		return errorFor(err)
	}
	sort.Ints(selected)

	pages := make([]pageView, 0, len(selected))
	for _, n := range selected {
		b := content[n]
		if b == nil {
			continue
		}
		pages = append(pages, pageView{PageNumber: n, Content: b.String()})
	}

	cursor := 0
	if p.Continuation != "" {
		token, err := decodeToken(p.Continuation, "get_pages", doc.ID)
		if err != nil {
			return errorFor(err)
		}
		cursor = token.Cursor
	}
	env := paged("pages", pages, cursor, h.budget(p.MaxTokens),
		continuationToken{Endpoint: "get_pages", DocumentID: doc.ID})
	env.Data["total_pages"] = total
	return env
}

type slideView struct {
	SlideNumber int    `json:"slide_number"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Notes       string `json:"notes"`
}

func (h *Handler) getSlides(ctx context.Context, raw json.RawMessage) Envelope {
	var p documentParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	_, st, doc, err := h.findDocument(ctx, p.DocumentID)
	if err != nil {
		return errorFor(err)
	}
	chunks, err := st.IterateChunks(ctx, doc.ID, chunkFetchLimit, 0)
	if err != nil {
		return errorFor(err)
	}

	byNumber := map[int]*slideView{}
	total := 0
	for _, ch := range chunks {
		if ch.Location.Kind != model.LocationSlide {
			continue
		}
		n := ch.Location.Slide
		if n > total {
			total = n
		}
		sv := byNumber[n]
		if sv == nil {
			sv = &slideView{SlideNumber: n, Title: ch.Semantic.Heading}
			byNumber[n] = sv
		}
		sv.Content += ch.Text
	}
	if total == 0 {
		return errorFor(fmt.Errorf("%w: document has no slides", model.ErrInvalidInput))
	}

	selected, err := parseRange(p.SlideNumbers, total)
	if err != nil {
		return errorFor(err)
	}
	sort.Ints(selected)

	slides := make([]slideView, 0, len(selected))
	for _, n := range selected {
		if sv := byNumber[n]; sv != nil {
			slides = append(slides, *sv)
		}
	}

	cursor := 0
	if p.Continuation != "" {
		token, err := decodeToken(p.Continuation, "get_slides", doc.ID)
		if err != nil {
			return errorFor(err)
		}
		cursor = token.Cursor
	}
	env := paged("slides", slides, cursor, h.budget(p.MaxTokens),
		continuationToken{Endpoint: "get_slides", DocumentID: doc.ID})
	env.Data["total_slides"] = total
	return env
}

func (h *Handler) getSheetData(ctx context.Context, raw json.RawMessage) Envelope {
	var p documentParams
	if err := decodeParams(raw, &p); err != nil {
		return errorFor(err)
	}
	_, st, doc, err := h.findDocument(ctx, p.DocumentID)
	if err != nil {
		return errorFor(err)
	}
	if doc.ParserType == "csv" && p.SheetName != "" {
		return errorFor(fmt.Errorf("%w: CSV documents have no sheets", model.ErrInvalidInput))
	}

	chunks, err := st.IterateChunks(ctx, doc.ID, chunkFetchLimit, 0)
	if err != nil {
		return errorFor(err)
	}

	var headers []string
	var rows [][]string
	found := false
	for _, ch := range chunks {
		if ch.Location.Kind != model.LocationSheet {
			continue
		}
		if p.SheetName != "" && ch.Location.Sheet != p.SheetName {
			continue
		}
		found = true
		lines := strings.Split(strings.TrimRight(ch.Text, "\n"), "\n")
		if len(lines) == 0 {
			continue
		}
		if headers == nil {
			headers = strings.Split(lines[0], "\t")
		}
		for _, line := range lines[1:] {
			rows = append(rows, strings.Split(line, "\t"))
		}
	}
	if !found {
		if p.SheetName != "" {
			return errorFor(fmt.Errorf("%w: sheet %q", model.ErrNotFound, p.SheetName))
		}
		return errorFor(fmt.Errorf("%w: document has no tabular data", model.ErrInvalidInput))
	}

	if p.CellRange != "" {
		selected, err := parseRange(p.CellRange, len(rows))
		if err != nil {
			return errorFor(err)
		}
		sort.Ints(selected)
		filtered := make([][]string, 0, len(selected))
		for _, n := range selected {
			filtered = append(filtered, rows[n-1])
		}
		rows = filtered
	}

	cursor := 0
	if p.Continuation != "" {
		token, err := decodeToken(p.Continuation, "get_sheet_data", doc.ID)
		if err != nil {
			return errorFor(err)
		}
		cursor = token.Cursor
	}
	env := paged("rows", rows, cursor, h.budget(p.MaxTokens),
		continuationToken{Endpoint: "get_sheet_data", DocumentID: doc.ID})
	env.Data["headers"] = headers
	return env
}

func baseName(relPath string) string {
	if idx := strings.LastIndexByte(relPath, '/'); idx >= 0 {
		return relPath[idx+1:]
	}
	return relPath
}
