package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// HashModelName is the model identifier of the deterministic builtin
// provider.
const HashModelName = "hash-v1"

// hashDimension is fixed for hash-v1; changing it would be a new model.
const hashDimension = 384

// hashProvider embeds text by feature hashing its tokens: each token lands
// in one of hashDimension buckets with a hash-derived sign, bucket weights
// accumulate, and the result is L2-normalized. Texts that share vocabulary
// overlap in vector space, so cosine similarity tracks shared terms rather
// than exact identity. It needs no network and no model files, embeds the
// same text to the same vector on every platform, and is the default backend.
type hashProvider struct{}

func NewHashProvider() *hashProvider { return &hashProvider{} }

func (*hashProvider) Name() string { return BackendBuiltin + ":" + HashModelName }

func (*hashProvider) Dimension() int { return hashDimension }

func (p *hashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

// hashVector folds the text's case-folded, NFC-normalized tokens into a
// fixed-size vector and L2-normalizes it. Tokenless input maps to a fixed
// unit vector so the result is never zero.
func hashVector(text string) []float32 {
	tokens := strings.Fields(norm.NFC.String(strings.ToLower(text)))

	vec := make([]float32, hashDimension)
	if len(tokens) == 0 {
		vec[0] = 1
		return vec
	}
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		idx := int(binary.LittleEndian.Uint32(sum[0:4]) % uint32(hashDimension))
		if sum[4]&1 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var total float64
	for _, v := range vec {
		total += float64(v) * float64(v)
	}
	if total == 0 {
		// opposite-signed tokens cancelled out
		vec[0] = 1
		return vec
	}
	inv := 1 / math.Sqrt(total)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}
