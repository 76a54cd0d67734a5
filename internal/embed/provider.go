// Package embed provides embedding providers and the batching worker that
// feeds chunk text through them.
package embed

import (
	"fmt"

	"foldermcp/internal/model"
)

// BackendBuiltin is the only backend compiled in. Additional backends
// register through the same factory table.
const BackendBuiltin = "builtin"

// Models lists the model identifiers each known backend accepts, in the
// shape the configuration validator wants.
func Models() map[string][]string {
	return map[string][]string{
		BackendBuiltin: {HashModelName},
	}
}

// NewProvider resolves a backend/model pair to a provider. Unknown pairs
// fail with ErrModelUnavailable so folder activation can surface a clear
// failure instead of indexing with the wrong vectors.
func NewProvider(backend, modelName string) (model.EmbeddingProvider, error) {
	if backend == "" {
		backend = BackendBuiltin
	}
	if modelName == "" {
		modelName = HashModelName
	}
	switch backend {
	case BackendBuiltin:
		if modelName != HashModelName {
			return nil, fmt.Errorf("%w: unknown builtin model %q", model.ErrModelUnavailable, modelName)
		}
		return NewHashProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", model.ErrModelUnavailable, backend)
	}
}
