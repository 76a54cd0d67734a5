package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutlineFromText(t *testing.T) {
	doc := ParsedDocument{
		Kind:    ParsedText,
		Content: "one\ntwo\nthree\n",
		Sections: []Section{
			{Heading: "Intro", StartLine: 1, EndLine: 2},
			{Heading: "Usage", StartLine: 3, EndLine: 3},
		},
		Meta: ParseMeta{SizeBytes: 14},
	}

	o := doc.Outline()
	require.Equal(t, OutlineText, o.Kind)
	require.Equal(t, 3, o.Lines)
	require.Equal(t, int64(14), o.FileSize)
	require.Equal(t, []HeadingInfo{
		{Title: "Intro", Line: 1},
		{Title: "Usage", Line: 3},
	}, o.Headings)
}

func TestOutlineFromEmptyText(t *testing.T) {
	o := ParsedDocument{Kind: ParsedText, Content: ""}.Outline()
	require.Equal(t, OutlineText, o.Kind)
	require.Zero(t, o.Lines)
}

func TestOutlineFromSpreadsheet(t *testing.T) {
	doc := ParsedDocument{
		Kind: ParsedSpreadsheet,
		Sheets: []Sheet{
			{Name: "People", Headers: []string{"name", "city"}, Rows: [][]string{
				{"ada", "london"},
				{"grace", "new york", "extra"},
			}},
			{Name: "Empty"},
		},
	}

	o := doc.Outline()
	require.Equal(t, OutlineSheets, o.Kind)
	require.Equal(t, 2, o.TotalRows)
	require.Equal(t, []SheetInfo{
		{Name: "People", Rows: 2, Columns: 3},
		{Name: "Empty", Rows: 0, Columns: 0},
	}, o.Sheets)
}

func TestOutlineFromSlides(t *testing.T) {
	doc := ParsedDocument{
		Kind: ParsedSlides,
		Slides: []SlideContent{
			{Number: 1, Title: "Welcome"},
			{Number: 2, Title: "Roadmap"},
		},
	}

	o := doc.Outline()
	require.Equal(t, OutlineSlides, o.Kind)
	require.Equal(t, 2, o.TotalSlides)
	require.Equal(t, []SlideInfo{
		{Number: 1, Title: "Welcome"},
		{Number: 2, Title: "Roadmap"},
	}, o.Slides)
}

func TestOutlineFromPages(t *testing.T) {
	doc := ParsedDocument{
		Kind:  ParsedPaginated,
		Pages: []Page{{Number: 1}, {Number: 2}, {Number: 3}},
	}

	o := doc.Outline()
	require.Equal(t, OutlinePDF, o.Kind)
	require.Equal(t, 3, o.TotalPages)
}
