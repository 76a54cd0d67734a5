package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"foldermcp/internal/model"
)

// Registry maps file extensions to parser capabilities. It is mutable during
// process startup and read-only after Seal; the MCP layer and pipeline only
// ever see a sealed registry.
type Registry struct {
	mu      sync.RWMutex
	sealed  bool
	parsers map[string]model.Parser
}

// NewRegistry returns a registry preloaded with the built-in parsers (plain
// text, markdown, code, CSV).
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]model.Parser)}
	r.mustRegister(&textParser{})
	r.mustRegister(&markdownParser{})
	r.mustRegister(&codeParser{})
	r.mustRegister(&csvParser{})
	return r
}

// Register adds a parser for every extension it reports. Registering after
// Seal, or an extension collision, is an error.
func (r *Registry) Register(p model.Parser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("parser registry is sealed")
	}
	for _, ext := range p.Extensions() {
		ext = normalizeExt(ext)
		if existing, ok := r.parsers[ext]; ok {
			return fmt.Errorf("extension %s already registered to %s", ext, existing.Type())
		}
		r.parsers[ext] = p
	}
	return nil
}

func (r *Registry) mustRegister(p model.Parser) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Seal freezes the registry. Further Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Supports reports whether any parser handles the extension.
func (r *Registry) Supports(extension string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.parsers[normalizeExt(extension)]
	return ok
}

// ListExtensions returns the sorted set of supported extensions.
func (r *Registry) ListExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Parse resolves the parser for path's extension and runs it. Unknown
// extensions fail with model.ErrUnsupportedType.
func (r *Registry) Parse(ctx context.Context, absPath string) (model.ParsedDocument, error) {
	ext := normalizeExt(filepath.Ext(absPath))

	r.mu.RLock()
	p, ok := r.parsers[ext]
	r.mu.RUnlock()
	if !ok {
		return model.ParsedDocument{}, fmt.Errorf("%w: %s", model.ErrUnsupportedType, ext)
	}
	if err := ctx.Err(); err != nil {
		return model.ParsedDocument{}, err
	}
	return p.Parse(ctx, absPath)
}

// ParserType returns the parser type string for an extension, or "" when
// unsupported.
func (r *Registry) ParserType(extension string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[normalizeExt(extension)]
	if !ok {
		return ""
	}
	return p.Type()
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	return strings.TrimPrefix(ext, ".")
}

// readFileWithMeta is the shared entry point for built-in parsers: it reads
// the raw bytes and fills the metadata every ParsedDocument carries.
func readFileWithMeta(absPath, parserType string) ([]byte, model.ParseMeta, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, model.ParseMeta{}, err
	}
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, model.ParseMeta{}, err
	}
	sum := sha256.Sum256(raw)
	return raw, model.ParseMeta{
		SizeBytes:  info.Size(),
		MTimeUnix:  info.ModTime().Unix(),
		ParserType: parserType,
		ByteHash:   hex.EncodeToString(sum[:]),
	}, nil
}
