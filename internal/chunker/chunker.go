// Package chunker splits parsed documents into bounded, ordered chunks that
// carry locations and semantic metadata. Chunk boundaries prefer paragraph
// breaks, then sentence breaks, then whitespace, so that concatenating the
// chunk texts of a text document in ordinal order reproduces its content.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"foldermcp/internal/model"
)

// DefaultTargetTokens is the chunk size the splitter aims for when the
// configuration does not override it.
const DefaultTargetTokens = 400

// Chunker implements model.Chunker. A chunk may exceed the target up to the
// soft cap when merging keeps a paragraph whole, and never exceeds the hard
// cap.
type Chunker struct {
	target  int
	softCap int
	hardCap int
}

func New(targetTokens int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = DefaultTargetTokens
	}
	return &Chunker{
		target:  targetTokens,
		softCap: targetTokens + targetTokens/2,
		hardCap: targetTokens * 2,
	}
}

// EstimateTokens approximates the token count of text as ceil(runes/4). The
// estimate only has to be stable and monotonic; budgets are sized around it.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// contentHash hashes the chunk text after NFC normalization and trailing
// whitespace stripping, so cosmetic edits do not invalidate embeddings.
func contentHash(text string) string {
	normalized := norm.NFC.String(strings.TrimRight(text, " \t\n"))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Chunk splits doc into chunks with dense ordinals starting at zero. Empty
// and whitespace-only documents yield zero chunks, which is not an error.
func (c *Chunker) Chunk(doc model.ParsedDocument, documentID string) ([]model.Chunk, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: empty document id", model.ErrInvalidInput)
	}
	b := &builder{documentID: documentID}
	switch doc.Kind {
	case model.ParsedText:
		c.chunkText(b, doc)
	case model.ParsedPaginated:
		c.chunkPages(b, doc)
	case model.ParsedSlides:
		c.chunkSlides(b, doc)
	case model.ParsedSpreadsheet:
		c.chunkSheets(b, doc)
	default:
		return nil, fmt.Errorf("%w: unknown parsed kind %q", model.ErrInvalidInput, doc.Kind)
	}
	return b.chunks, nil
}

// builder accumulates chunks and assigns dense ordinals.
type builder struct {
	documentID string
	chunks     []model.Chunk
}

func (b *builder) add(text string, loc model.Location, sem model.SemanticMetadata) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if sem.Kind == "" {
		sem = model.DefaultSemanticMetadata()
	}
	ordinal := len(b.chunks)
	hash := contentHash(text)
	b.chunks = append(b.chunks, model.Chunk{
		ID:          model.ChunkID(b.documentID, ordinal, hash),
		DocumentID:  b.documentID,
		Ordinal:     ordinal,
		Text:        text,
		TokenCount:  EstimateTokens(text),
		ContentHash: hash,
		Location:    loc,
		Semantic:    sem,
	})
}

func (c *Chunker) chunkText(b *builder, doc model.ParsedDocument) {
	baseKind := model.ChunkKindProse
	if doc.Meta.Language != "" {
		baseKind = model.ChunkKindCode
	}
	line := 1
	for _, piece := range c.split(doc.Content, levelParagraph) {
		startLine := line
		newlines := strings.Count(piece, "\n")
		trailing := len(piece) - len(strings.TrimRight(piece, "\n"))
		endLine := startLine + newlines - trailing
		if endLine < startLine {
			endLine = startLine
		}
		line += newlines

		sem := model.SemanticMetadata{Language: doc.Meta.Language, Kind: baseKind}
		if sec, ok := sectionAt(doc.Sections, startLine); ok {
			sem.SectionPath = sec.Path
			sem.Heading = sec.Heading
		}
		b.add(piece, model.Location{
			Kind:      model.LocationLines,
			StartLine: startLine,
			EndLine:   endLine,
		}, sem)
	}
}

func (c *Chunker) chunkPages(b *builder, doc model.ParsedDocument) {
	for _, page := range doc.Pages {
		for _, piece := range c.split(page.Content, levelParagraph) {
			b.add(piece, model.Location{Kind: model.LocationPage, Page: page.Number},
				model.SemanticMetadata{Kind: model.ChunkKindProse})
		}
	}
}

func (c *Chunker) chunkSlides(b *builder, doc model.ParsedDocument) {
	for _, slide := range doc.Slides {
		parts := make([]string, 0, 3)
		for _, s := range []string{slide.Title, slide.Body, slide.Notes} {
			if s != "" {
				parts = append(parts, s)
			}
		}
		text := strings.Join(parts, "\n")
		sem := model.SemanticMetadata{Heading: slide.Title, Kind: model.ChunkKindProse}
		for _, piece := range c.split(text, levelParagraph) {
			b.add(piece, model.Location{Kind: model.LocationSlide, Slide: slide.Number}, sem)
		}
	}
}

// chunkSheets packs data rows into chunks and prepends the header line to
// each so every chunk is independently interpretable. Ranges are 1-based data
// row numbers, header excluded.
func (c *Chunker) chunkSheets(b *builder, doc model.ParsedDocument) {
	for _, sheet := range doc.Sheets {
		header := ""
		if len(sheet.Headers) > 0 {
			header = strings.Join(sheet.Headers, "\t") + "\n"
		}
		var buf strings.Builder
		bufTokens := EstimateTokens(header)
		firstRow := 0

		flush := func(lastRow int) {
			if firstRow == 0 {
				return
			}
			b.add(header+buf.String(), model.Location{
				Kind:  model.LocationSheet,
				Sheet: sheet.Name,
				Range: fmt.Sprintf("%d-%d", firstRow, lastRow),
			}, model.SemanticMetadata{Kind: model.ChunkKindTable})
			buf.Reset()
			bufTokens = EstimateTokens(header)
			firstRow = 0
		}

		for i, row := range sheet.Rows {
			line := strings.Join(row, "\t") + "\n"
			t := EstimateTokens(line)
			if firstRow != 0 && bufTokens+t > c.softCap {
				flush(i)
			}
			if firstRow == 0 {
				firstRow = i + 1
			}
			buf.WriteString(line)
			bufTokens += t
		}
		flush(len(sheet.Rows))
	}
}

// sectionAt returns the deepest section containing the given 1-based line.
func sectionAt(sections []model.Section, line int) (model.Section, bool) {
	best := -1
	for i, sec := range sections {
		if line < sec.StartLine || line > sec.EndLine {
			continue
		}
		if best < 0 || len(sec.Path) > len(sections[best].Path) {
			best = i
		}
	}
	if best < 0 {
		return model.Section{}, false
	}
	return sections[best], true
}
