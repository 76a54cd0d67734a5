package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"foldermcp/internal/model"
)

type csvParser struct{}

func (*csvParser) Type() string { return "csv" }

func (*csvParser) Extensions() []string { return []string{"csv", "tsv"} }

func (p *csvParser) Supports(extension string) bool {
	return supportsExt(p, extension)
}

// Parse produces a spreadsheet-shaped document with exactly one unnamed
// sheet. CSV files have no sheet concept; the endpoint layer rejects callers
// that pass one.
func (p *csvParser) Parse(_ context.Context, absPath string) (model.ParsedDocument, error) {
	raw, meta, err := readFileWithMeta(absPath, p.Type())
	if err != nil {
		return model.ParsedDocument{}, err
	}

	reader := csv.NewReader(strings.NewReader(normalizeNewlines(string(raw))))
	if strings.HasSuffix(strings.ToLower(absPath), ".tsv") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return model.ParsedDocument{}, fmt.Errorf("%w: %v", model.ErrParseFailed, err)
	}

	sheet := model.Sheet{Name: ""}
	if len(records) > 0 {
		sheet.Headers = records[0]
		sheet.Rows = records[1:]
	}
	return model.ParsedDocument{
		Kind:   model.ParsedSpreadsheet,
		Sheets: []model.Sheet{sheet},
		Meta:   meta,
	}, nil
}
