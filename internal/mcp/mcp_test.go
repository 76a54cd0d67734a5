package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"foldermcp/internal/config"
	"foldermcp/internal/embed"
	"foldermcp/internal/model"
	"foldermcp/internal/orchestrator"
)

func newTestHandler(t *testing.T, roots ...string) *Handler {
	t.Helper()
	o := orchestrator.New(orchestrator.Options{
		StateRoot: filepath.Join(t.TempDir(), "state"),
		Debounce:  50 * time.Millisecond,
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(func() { _ = o.StopAll(context.Background()) })

	ctx := context.Background()
	for _, root := range roots {
		cfg := config.FolderConfig{Path: root, Name: filepath.Base(root), Enabled: true}
		require.NoError(t, o.Add(ctx, cfg))
	}
	for _, root := range roots {
		root := root
		require.Eventually(t, func() bool {
			r, err := o.Get(root)
			return err == nil && r.State() == model.StateWatching
		}, 10*time.Second, 20*time.Millisecond)
	}

	provider, err := embed.NewProvider("", "")
	require.NoError(t, err)
	return NewHandler(HandlerOptions{
		Orchestrator: o,
		Provider:     provider,
		Logger:       zerolog.Nop(),
	})
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
}

func call(t *testing.T, h *Handler, method string, params any) Envelope {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	env, ok := h.Dispatch(context.Background(), method, raw)
	require.True(t, ok, "method %s should exist", method)
	return env
}

func TestParseRange(t *testing.T) {
	got, err := parseRange("", 3)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, got)

	got, err = parseRange("2", 5)
	require.NoError(t, err)
	require.Equal(t, []int{2}, got)

	got, err = parseRange("1-3,2,5", 5)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 5}, got)

	_, err = parseRange("0", 5)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = parseRange("4-2", 5)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = parseRange("6", 5)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = parseRange("x", 5)
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestContinuationTokenRoundTrip(t *testing.T) {
	raw := encodeToken(continuationToken{Endpoint: "get_pages", DocumentID: "abc", Cursor: 7})
	tok, err := decodeToken(raw, "get_pages", "abc")
	require.NoError(t, err)
	require.Equal(t, 7, tok.Cursor)

	_, err = decodeToken(raw, "get_slides", "abc")
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = decodeToken(raw, "get_pages", "other")
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = decodeToken("not base64!!!", "get_pages", "abc")
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = decodeToken("eyJib2d1cyI6dHJ1ZX0", "get_pages", "abc")
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestUnknownMethod(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	h := newTestHandler(t, root)

	_, ok := h.Dispatch(context.Background(), "no_such_method", nil)
	require.False(t, ok)
}

func TestSemanticSearchFindsDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "Hello world")
	writeFile(t, root, "b.md", "# Title\nbody")
	h := newTestHandler(t, root)

	env := call(t, h, "search", map[string]any{"query": "Hello world"})
	require.Equal(t, codeSuccess, env.Status.Code)

	results := env.Data["results"].([]searchResult)
	require.NotEmpty(t, results)
	require.Equal(t, model.DocumentID("a.txt"), results[0].DocumentID)
	require.Greater(t, results[0].Score, 0.9)

	// a single shared term still ranks the document first with a real score
	env = call(t, h, "search", map[string]any{"query": "Hello"})
	require.Equal(t, codeSuccess, env.Status.Code)
	results = env.Data["results"].([]searchResult)
	require.NotEmpty(t, results)
	require.Equal(t, model.DocumentID("a.txt"), results[0].DocumentID)
	require.Greater(t, results[0].Score, 0.5)
}

func TestRegexSearch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha beta gamma")
	h := newTestHandler(t, root)

	env := call(t, h, "search", map[string]any{"query": "bet[a]+", "mode": "regex"})
	require.Equal(t, codeSuccess, env.Status.Code)
	results := env.Data["results"].([]searchResult)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Preview, "beta")

	env = call(t, h, "search", map[string]any{"query": "[invalid", "mode": "regex"})
	require.Equal(t, codeError, env.Status.Code)
	require.Equal(t, msgInvalidArgument, env.Status.Message)
}

func TestGetDocumentDataFormats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "Hello world")
	h := newTestHandler(t, root)
	id := model.DocumentID("a.txt")

	env := call(t, h, "get_document_data", map[string]any{"document_id": id, "format": "raw"})
	require.Equal(t, codeSuccess, env.Status.Code)
	require.Equal(t, "Hello world", env.Data["content"])

	env = call(t, h, "get_document_data", map[string]any{"document_id": id, "format": "metadata"})
	require.Equal(t, codeSuccess, env.Status.Code)
	require.Equal(t, "a.txt", env.Data["name"])
	require.Equal(t, "text", env.Data["document_type"])

	env = call(t, h, "get_document_data", map[string]any{"document_id": id, "format": "chunks"})
	require.Equal(t, codeSuccess, env.Status.Code)

	env = call(t, h, "get_document_data", map[string]any{"document_id": id, "format": "bogus"})
	require.Equal(t, codeError, env.Status.Code)
	require.Equal(t, msgInvalidArgument, env.Status.Message)

	env = call(t, h, "get_document_data", map[string]any{"document_id": "ffffffffffffffffffffffffffffffff"})
	require.Equal(t, codeError, env.Status.Code)
	require.Equal(t, msgNotFound, env.Status.Message)
}

func TestGetDocumentDataEmptyFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "empty.txt", "")
	h := newTestHandler(t, root)

	env := call(t, h, "get_document_data", map[string]any{
		"document_id": model.DocumentID("empty.txt"), "format": "raw",
	})
	require.Equal(t, codeSuccess, env.Status.Code)
	require.Equal(t, "", env.Data["content"])
}

func TestGetPagesSyntheticSinglePage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "line one\nline two\n")
	h := newTestHandler(t, root)

	env := call(t, h, "get_pages", map[string]any{"document_id": model.DocumentID("a.txt")})
	require.Equal(t, codeSuccess, env.Status.Code)
	require.Equal(t, 1, env.Data["total_pages"])
	pages := env.Data["pages"].([]pageView)
	require.Len(t, pages, 1)
	require.Equal(t, 1, pages[0].PageNumber)
	require.Equal(t, "line one\nline two\n", pages[0].Content)
}

func TestGetSlidesOnTextDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "not a presentation")
	h := newTestHandler(t, root)

	env := call(t, h, "get_slides", map[string]any{"document_id": model.DocumentID("a.txt")})
	require.Equal(t, codeError, env.Status.Code)
	require.Equal(t, msgInvalidArgument, env.Status.Message)
}

func TestGetSheetData(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "customers.csv", "name,city\nada,london\ngrace,new york\n")
	h := newTestHandler(t, root)
	id := model.DocumentID("customers.csv")

	env := call(t, h, "get_sheet_data", map[string]any{"document_id": id})
	require.Equal(t, codeSuccess, env.Status.Code)
	require.Equal(t, []string{"name", "city"}, env.Data["headers"])
	rows := env.Data["rows"].([][]string)
	require.Equal(t, [][]string{{"ada", "london"}, {"grace", "new york"}}, rows)

	env = call(t, h, "get_sheet_data", map[string]any{"document_id": id, "cell_range": "2"})
	require.Equal(t, codeSuccess, env.Status.Code)
	rows = env.Data["rows"].([][]string)
	require.Equal(t, [][]string{{"grace", "new york"}}, rows)
}

func TestGetSheetDataCSVRejectsSheetName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "customers.csv", "name\nada\n")
	h := newTestHandler(t, root)

	env := call(t, h, "get_sheet_data", map[string]any{
		"document_id": model.DocumentID("customers.csv"), "sheet_name": "Sheet1",
	})
	require.Equal(t, codeError, env.Status.Code)
	require.Equal(t, msgInvalidArgument, env.Status.Message)
}

func TestGetDocumentOutlineText(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "one\ntwo\nthree\n")
	h := newTestHandler(t, root)

	env := call(t, h, "get_document_outline", map[string]any{"document_id": model.DocumentID("a.txt")})
	require.Equal(t, codeSuccess, env.Status.Code)
	outline := env.Data["outline"].(model.Outline)
	require.Equal(t, model.OutlineText, outline.Kind)
	require.Equal(t, 3, outline.Lines)
}

func TestListFoldersAndDocuments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	h := newTestHandler(t, root)

	env := call(t, h, "list_folders", nil)
	require.Equal(t, codeSuccess, env.Status.Code)
	folders := env.Data["folders"].([]orchestrator.FolderStatus)
	require.Len(t, folders, 1)
	require.Equal(t, filepath.Base(root), folders[0].Name)

	env = call(t, h, "list_documents", map[string]any{"folder": root})
	require.Equal(t, codeSuccess, env.Status.Code)
	docs := env.Data["documents"].([]documentView)
	require.Len(t, docs, 2)
	require.Equal(t, "a.txt", docs[0].Name)
	require.NotEmpty(t, docs[0].Modified)

	env = call(t, h, "list_documents", map[string]any{"folder": filepath.Join(root, "missing")})
	require.Equal(t, codeError, env.Status.Code)
	require.Equal(t, msgNotFound, env.Status.Message)
}

func TestListDocumentsPagination(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, root, fmt.Sprintf("doc-%02d.txt", i), "content")
	}
	h := newTestHandler(t, root)

	var names []string
	params := map[string]any{"folder": root, "max_tokens": 60}
	for page := 0; page < 50; page++ {
		env := call(t, h, "list_documents", params)
		require.NotEqual(t, codeError, env.Status.Code)
		for _, d := range env.Data["documents"].([]documentView) {
			names = append(names, d.Name)
		}
		if !env.Continuation.HasMore {
			break
		}
		require.NotEmpty(t, env.Continuation.Token)
		params["continuation"] = env.Continuation.Token
	}
	require.Len(t, names, 20)
	require.Equal(t, "doc-00.txt", names[0])
	require.Equal(t, "doc-19.txt", names[19])
}

func TestFirstItemAlwaysIncluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", "word ")
	h := newTestHandler(t, root)

	env := call(t, h, "get_document_data", map[string]any{
		"document_id": model.DocumentID("big.txt"),
		"format":      "chunks",
		"max_tokens":  1,
	})
	require.Equal(t, codePartialSuccess, env.Status.Code)
	require.Equal(t, msgTokenLimitExceeded, env.Status.Message)
	require.NotEmpty(t, env.Data["chunks"])

	var found bool
	for _, a := range env.Actions {
		if a.ID == actionIncreaseLimit {
			found = true
		}
	}
	require.True(t, found)
}

func TestGetEmbedding(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	h := newTestHandler(t, root)

	env := call(t, h, "get_embedding", map[string]any{"text": "hello"})
	require.Equal(t, codeSuccess, env.Status.Code)
	vec := env.Data["embedding"].([]float32)
	require.Len(t, vec, 384)

	env = call(t, h, "get_embedding", map[string]any{})
	require.Equal(t, codeError, env.Status.Code)
	require.Equal(t, msgInvalidArgument, env.Status.Message)
}

func TestGetStatus(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	h := newTestHandler(t, root)

	env := call(t, h, "get_status", nil)
	require.Equal(t, codeSuccess, env.Status.Code)
	require.Equal(t, "ready", env.Data["status"])
	require.Equal(t, float64(100), env.Data["progress"])

	env = call(t, h, "get_status", map[string]any{"document_id": model.DocumentID("a.txt")})
	require.Equal(t, codeSuccess, env.Status.Code)
	require.Equal(t, "ready", env.Data["status"])
}

func TestTokenCountStamped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	h := newTestHandler(t, root)

	env := call(t, h, "list_folders", nil)
	count, ok := env.Data["token_count"].(int)
	require.True(t, ok)
	require.Greater(t, count, 0)
}

func TestAggregateSummaryBeforeFirstDocument(t *testing.T) {
	// folders still scanning, nothing discovered yet: 0%, not 100%
	status, progress, _ := summarizeAggregate(true, false, model.AggregateStatus{})
	require.Equal(t, "processing", status)
	require.Zero(t, progress)

	status, progress, _ = summarizeAggregate(true, false, model.AggregateStatus{
		Total: 4, Ready: 1, Pending: 3,
	})
	require.Equal(t, "processing", status)
	require.Equal(t, float64(25), progress)

	status, progress, _ = summarizeAggregate(false, false, model.AggregateStatus{
		Total: 4, Ready: 3, Failed: 1,
	})
	require.Equal(t, "ready", status)
	require.Equal(t, float64(100), progress)

	// no folders registered at all still reads as idle
	status, progress, _ = summarizeAggregate(false, false, model.AggregateStatus{})
	require.Equal(t, "ready", status)
	require.Equal(t, float64(100), progress)
}
