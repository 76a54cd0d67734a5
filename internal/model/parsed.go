package model

import "strings"

// ParsedKind tags the shape of a parsed document.
type ParsedKind string

const (
	ParsedText        ParsedKind = "text"
	ParsedPaginated   ParsedKind = "paginated"
	ParsedSlides      ParsedKind = "slides"
	ParsedSpreadsheet ParsedKind = "spreadsheet"
)

// ParseMeta is shared metadata every parser reports.
type ParseMeta struct {
	SizeBytes  int64
	MTimeUnix  int64
	ParserType string
	ByteHash   string
	Language   string
}

// Page is one page of a paginated document.
type Page struct {
	Number  int
	Content string
}

// SlideContent is one slide of a presentation.
type SlideContent struct {
	Number int
	Title  string
	Body   string
	Notes  string
}

// Sheet is one tabular sheet of a spreadsheet (or the single unnamed sheet
// of a CSV file).
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Section records a heading-scoped region of a text document, used to attach
// section paths to chunks.
type Section struct {
	Path      []string
	Heading   string
	StartLine int
	EndLine   int
}

// ParsedDocument is the tagged union produced by the parser registry. Only
// the fields selected by Kind are populated.
type ParsedDocument struct {
	Kind     ParsedKind
	Content  string
	Pages    []Page
	Slides   []SlideContent
	Sheets   []Sheet
	Sections []Section
	Meta     ParseMeta
}

// FlatText returns the document's full textual content regardless of shape.
// For paginated and slide documents pages/slides are joined with form-feed
// free double newlines; spreadsheets are rendered row-wise tab separated.
func (p ParsedDocument) FlatText() string {
	switch p.Kind {
	case ParsedText:
		return p.Content
	case ParsedPaginated:
		parts := make([]string, 0, len(p.Pages))
		for _, page := range p.Pages {
			parts = append(parts, page.Content)
		}
		return strings.Join(parts, "\n\n")
	case ParsedSlides:
		parts := make([]string, 0, len(p.Slides))
		for _, slide := range p.Slides {
			segment := slide.Title
			if slide.Body != "" {
				if segment != "" {
					segment += "\n"
				}
				segment += slide.Body
			}
			if slide.Notes != "" {
				if segment != "" {
					segment += "\n"
				}
				segment += slide.Notes
			}
			parts = append(parts, segment)
		}
		return strings.Join(parts, "\n\n")
	case ParsedSpreadsheet:
		var b strings.Builder
		for si, sheet := range p.Sheets {
			if si > 0 {
				b.WriteString("\n\n")
			}
			if len(sheet.Headers) > 0 {
				b.WriteString(strings.Join(sheet.Headers, "\t"))
				b.WriteByte('\n')
			}
			for ri, row := range sheet.Rows {
				if ri > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(strings.Join(row, "\t"))
			}
		}
		return b.String()
	default:
		return p.Content
	}
}

// OutlineKind tags the navigable-structure summary for a document.
type OutlineKind string

const (
	OutlinePDF    OutlineKind = "pdf"
	OutlineSheets OutlineKind = "xlsx"
	OutlineSlides OutlineKind = "pptx"
	OutlineText   OutlineKind = "text"
)

type Bookmark struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
}

type SheetInfo struct {
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

type SlideInfo struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// HeadingInfo is one heading in a text-ish document's outline.
type HeadingInfo struct {
	Title string `json:"title"`
	Line  int    `json:"line"`
}

// Outline summarizes the navigable structure the parser reported. It is
// computed once at indexing time and persisted with the document, so serving
// an outline later costs one row read.
func (p ParsedDocument) Outline() Outline {
	o := Outline{FileSize: p.Meta.SizeBytes}
	switch p.Kind {
	case ParsedPaginated:
		o.Kind = OutlinePDF
		for _, page := range p.Pages {
			if page.Number > o.TotalPages {
				o.TotalPages = page.Number
			}
		}
		if o.TotalPages == 0 {
			o.TotalPages = len(p.Pages)
		}
	case ParsedSlides:
		o.Kind = OutlineSlides
		for _, slide := range p.Slides {
			if slide.Number > o.TotalSlides {
				o.TotalSlides = slide.Number
			}
			o.Slides = append(o.Slides, SlideInfo{Number: slide.Number, Title: slide.Title})
		}
	case ParsedSpreadsheet:
		o.Kind = OutlineSheets
		for _, sheet := range p.Sheets {
			columns := len(sheet.Headers)
			for _, row := range sheet.Rows {
				if len(row) > columns {
					columns = len(row)
				}
			}
			o.Sheets = append(o.Sheets, SheetInfo{
				Name:    sheet.Name,
				Rows:    len(sheet.Rows),
				Columns: columns,
			})
			o.TotalRows += len(sheet.Rows)
		}
	default:
		o.Kind = OutlineText
		if trimmed := strings.TrimRight(p.Content, "\n"); trimmed != "" {
			o.Lines = strings.Count(trimmed, "\n") + 1
		}
		for _, sec := range p.Sections {
			if sec.Heading == "" {
				continue
			}
			o.Headings = append(o.Headings, HeadingInfo{Title: sec.Heading, Line: sec.StartLine})
		}
	}
	return o
}

// Outline is the type-tagged outline returned by get_document_outline. It is
// built from cached metadata, never by re-parsing the document body.
type Outline struct {
	Kind        OutlineKind   `json:"type"`
	TotalPages  int           `json:"total_pages,omitempty"`
	Bookmarks   []Bookmark    `json:"bookmarks,omitempty"`
	Sheets      []SheetInfo   `json:"sheets,omitempty"`
	TotalRows   int           `json:"total_rows,omitempty"`
	TotalSlides int           `json:"total_slides,omitempty"`
	Slides      []SlideInfo   `json:"slides,omitempty"`
	Lines       int           `json:"lines,omitempty"`
	Headings    []HeadingInfo `json:"headings,omitempty"`
	FileSize    int64         `json:"file_size"`
}
