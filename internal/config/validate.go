package config

import (
	"fmt"
	"os"
	"strings"
)

// knownModels maps backend identifier to the model names it can serve. The
// builtin backend is always registered; external backends extend this table
// through RegisterBackendModels before Load runs.
var knownModels = map[string]map[string]struct{}{
	"builtin": {
		"hash-v1": {},
	},
}

// RegisterBackendModels declares the models a backend can load, so config
// validation can reject unknown model identifiers up front.
func RegisterBackendModels(backend string, models ...string) {
	set, ok := knownModels[backend]
	if !ok {
		set = make(map[string]struct{}, len(models))
		knownModels[backend] = set
	}
	for _, m := range models {
		set[m] = struct{}{}
	}
}

// Validate applies the schema rules: folder paths must exist and be
// directories, folder paths must be unique, and every model must be known to
// its backend.
func Validate(cfg Config) error {
	seen := make(map[string]struct{}, len(cfg.Folders))
	for _, folder := range cfg.Folders {
		path := strings.TrimSpace(folder.Path)
		if path == "" {
			return fmt.Errorf("folder path is required")
		}
		if _, dup := seen[path]; dup {
			return fmt.Errorf("folder %s: registered more than once", path)
		}
		seen[path] = struct{}{}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("folder %s: %w", path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("folder %s: not a directory", path)
		}

		backend := folder.Embeddings.Backend
		if backend == "" {
			backend = "builtin"
		}
		modelName := folder.Embeddings.Model
		if modelName == "" {
			modelName = "hash-v1"
		}
		models, ok := knownModels[backend]
		if !ok {
			return fmt.Errorf("folder %s: unknown embedding backend %q", path, backend)
		}
		if _, ok := models[modelName]; !ok {
			return fmt.Errorf("folder %s: model %q is not known to backend %q", path, modelName, backend)
		}
	}

	if cfg.Chunking.TargetTokens < 0 {
		return fmt.Errorf("chunking.target_tokens must be >= 0")
	}
	if cfg.Server.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("server.request_timeout_seconds must be >= 0")
	}
	return nil
}
