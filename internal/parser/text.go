package parser

import (
	"context"
	"strings"

	"foldermcp/internal/model"
)

type textParser struct{}

func (*textParser) Type() string { return "text" }

func (*textParser) Extensions() []string { return []string{"txt", "log", "text"} }

func (p *textParser) Supports(extension string) bool {
	return supportsExt(p, extension)
}

func (p *textParser) Parse(_ context.Context, absPath string) (model.ParsedDocument, error) {
	raw, meta, err := readFileWithMeta(absPath, p.Type())
	if err != nil {
		return model.ParsedDocument{}, err
	}
	return model.ParsedDocument{
		Kind:    model.ParsedText,
		Content: normalizeNewlines(string(raw)),
		Meta:    meta,
	}, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func supportsExt(p model.Parser, extension string) bool {
	extension = normalizeExt(extension)
	for _, ext := range p.Extensions() {
		if ext == extension {
			return true
		}
	}
	return false
}
