package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"foldermcp/internal/model"
)

// previewRunes bounds the text excerpt attached to each search hit.
const previewRunes = 160

// encodeVector packs float32 components little-endian. The layout is part of
// the on-disk schema.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte, dimension int) ([]float32, error) {
	if len(buf) != 4*dimension {
		return nil, fmt.Errorf("%w: vector blob is %d bytes, want %d",
			model.ErrStoreUnavailable, len(buf), 4*dimension)
	}
	out := make([]float32, dimension)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}

// cosine returns similarity in [-1, 1]; zero vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SimilaritySearch scans the folder's embeddings, scores them against the
// query, and returns the top k hits ordered by score descending with ties
// broken by (document_id, ordinal) ascending.
func (s *SQLiteStore) SimilaritySearch(ctx context.Context, query []float32, k int, filters model.SearchFilters) ([]model.SearchHit, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", model.ErrInvalidInput)
	}
	if k <= 0 {
		k = 10
	}

	q := `
SELECT e.chunk_id, e.dimension, e.vector, c.document_id, c.ordinal, c.text, c.location
FROM embeddings e
JOIN chunks c ON c.id = e.chunk_id
JOIN documents d ON d.id = c.document_id
WHERE d.status = 'ready'`
	var args []any
	if filters.FileType != "" {
		q += ` AND (d.parser_type = ? OR d.rel_path LIKE ?)`
		args = append(args, filters.FileType, "%."+strings.TrimPrefix(filters.FileType, "."))
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var hits []model.SearchHit
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var chunkID, documentID, text, loc string
		var dimension, ordinal int
		var blob []byte
		if err := rows.Scan(&chunkID, &dimension, &blob, &documentID, &ordinal, &text, &loc); err != nil {
			return nil, classify(err)
		}
		if dimension != len(query) {
			// Vectors from a different model; never mix score spaces.
			continue
		}
		vec, err := decodeVector(blob, dimension)
		if err != nil {
			return nil, err
		}
		hit := model.SearchHit{
			ChunkID:    chunkID,
			DocumentID: documentID,
			Ordinal:    ordinal,
			Score:      cosine(query, vec),
			Preview:    preview(text),
		}
		if err := unmarshalLocation(loc, &hit.Location); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes])
}
