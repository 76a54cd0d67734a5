package parser

import (
	"context"
	"path/filepath"

	"foldermcp/internal/model"
)

// languageByExt mirrors the classification table the indexer uses for chunk
// metadata. Extensions absent here are not treated as code.
var languageByExt = map[string]string{
	"go":    "go",
	"py":    "python",
	"js":    "javascript",
	"jsx":   "javascript",
	"ts":    "typescript",
	"tsx":   "typescript",
	"rs":    "rust",
	"java":  "java",
	"c":     "c",
	"h":     "c",
	"cc":    "cpp",
	"cpp":   "cpp",
	"hpp":   "cpp",
	"cs":    "csharp",
	"rb":    "ruby",
	"php":   "php",
	"sh":    "shell",
	"bash":  "shell",
	"sql":   "sql",
	"yaml":  "yaml",
	"yml":   "yaml",
	"json":  "json",
	"toml":  "toml",
	"swift": "swift",
	"kt":    "kotlin",
}

// LanguageForExtension exposes the language table for chunk metadata.
func LanguageForExtension(ext string) string {
	return languageByExt[normalizeExt(ext)]
}

type codeParser struct{}

func (*codeParser) Type() string { return "code" }

func (*codeParser) Extensions() []string {
	out := make([]string, 0, len(languageByExt))
	for ext := range languageByExt {
		out = append(out, ext)
	}
	return out
}

func (p *codeParser) Supports(extension string) bool {
	return supportsExt(p, extension)
}

func (p *codeParser) Parse(_ context.Context, absPath string) (model.ParsedDocument, error) {
	raw, meta, err := readFileWithMeta(absPath, p.Type())
	if err != nil {
		return model.ParsedDocument{}, err
	}
	meta.Language = LanguageForExtension(filepath.Ext(absPath))
	return model.ParsedDocument{
		Kind:    model.ParsedText,
		Content: normalizeNewlines(string(raw)),
		Meta:    meta,
	}, nil
}
