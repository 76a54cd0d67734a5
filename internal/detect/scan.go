// Package detect scans monitored folders and classifies filesystem changes
// against the last persisted snapshot, so the pipeline only re-indexes what
// actually changed.
package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/unicode/norm"

	"foldermcp/internal/model"
)

// maxFileSizeBytes caps how large a file the scanner will hand to parsing.
const maxFileSizeBytes int64 = 10 * 1024 * 1024

var skippedDirs = map[string]struct{}{
	".git":         {},
	".folder-mcp":  {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	".venv":        {},
}

// Scanner walks a folder and reports the current set of candidate files.
// Include and Exclude are doublestar globs matched against the canonical
// relative path; an empty Include list admits everything.
type Scanner struct {
	Include []string
	Exclude []string

	// Supports filters by extension, normally the parser registry's
	// Supports method. Nil admits every extension.
	Supports func(extension string) bool
}

// Scan returns the folder's current files sorted by relative path. Content
// hashes are not computed here; Detect fills them in only where needed.
func (s *Scanner) Scan(ctx context.Context, root string) ([]model.FileStat, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", model.ErrInvalidInput, absRoot)
	}

	var files []model.FileStat
	if err := s.walkDir(ctx, absRoot, "", &files); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func (s *Scanner) walkDir(ctx context.Context, absDir, relDir string, out *[]model.FileStat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		relPath := name
		if relDir != "" {
			relPath = relDir + "/" + name
		}
		fullPath := filepath.Join(absDir, name)

		lstat, err := os.Lstat(fullPath)
		if err != nil {
			// Raced with a delete; the next scan will settle it.
			continue
		}
		if lstat.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if lstat.IsDir() {
			if _, skip := skippedDirs[name]; skip {
				continue
			}
			if s.excluded(relPath + "/") {
				continue
			}
			if err := s.walkDir(ctx, fullPath, relPath, out); err != nil {
				return err
			}
			continue
		}
		if !lstat.Mode().IsRegular() || lstat.Size() > maxFileSizeBytes {
			continue
		}
		canonical := CanonicalRelPath(relPath)
		if !s.admits(canonical) {
			continue
		}
		*out = append(*out, model.FileStat{
			RelPath:   canonical,
			AbsPath:   fullPath,
			SizeBytes: lstat.Size(),
			MTimeUnix: lstat.ModTime().Unix(),
		})
	}
	return nil
}

func (s *Scanner) admits(relPath string) bool {
	if s.Supports != nil && !s.Supports(strings.TrimPrefix(filepath.Ext(relPath), ".")) {
		return false
	}
	if s.excluded(relPath) {
		return false
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, pattern := range s.Include {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Scanner) excluded(relPath string) bool {
	for _, pattern := range s.Exclude {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// CanonicalRelPath normalizes a relative path for use as a stable document
// key: forward slashes and NFC, regardless of platform or filesystem.
func CanonicalRelPath(relPath string) string {
	return norm.NFC.String(filepath.ToSlash(relPath))
}

// HashFile streams the file through sha256 and returns the hex digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
