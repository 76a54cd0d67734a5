package config

import "sync/atomic"

// Holder publishes immutable configuration snapshots. Readers call Snapshot
// and keep the value; Replace swaps the whole configuration atomically on
// reload so in-flight readers are never exposed to a half-applied config.
type Holder struct {
	current atomic.Pointer[Config]
}

func NewHolder(cfg Config) *Holder {
	h := &Holder{}
	h.current.Store(&cfg)
	return h
}

// Snapshot returns the active configuration by value.
func (h *Holder) Snapshot() Config {
	return *h.current.Load()
}

// Replace atomically installs the new configuration and returns the folder
// diff against the previous snapshot.
func (h *Holder) Replace(cfg Config) FolderDiff {
	old := h.current.Swap(&cfg)
	return DiffFolders(old.Folders, cfg.Folders)
}

// FolderDiff is the result of comparing folder lists across a reload.
type FolderDiff struct {
	Added   []FolderConfig
	Removed []FolderConfig
	Changed []FolderConfig
}

// DiffFolders classifies folder entries as added, removed, or changed by
// path. Identical entries are omitted.
func DiffFolders(old, updated []FolderConfig) FolderDiff {
	oldByPath := make(map[string]FolderConfig, len(old))
	for _, f := range old {
		oldByPath[f.Path] = f
	}

	var diff FolderDiff
	seen := make(map[string]struct{}, len(updated))
	for _, f := range updated {
		seen[f.Path] = struct{}{}
		prev, ok := oldByPath[f.Path]
		if !ok {
			diff.Added = append(diff.Added, f)
			continue
		}
		if !folderEqual(prev, f) {
			diff.Changed = append(diff.Changed, f)
		}
	}
	for _, f := range old {
		if _, ok := seen[f.Path]; !ok {
			diff.Removed = append(diff.Removed, f)
		}
	}
	return diff
}

func folderEqual(a, b FolderConfig) bool {
	if a.Path != b.Path || a.Name != b.Name || a.Enabled != b.Enabled {
		return false
	}
	if a.Embeddings != b.Embeddings {
		return false
	}
	return stringSliceEqual(a.Include, b.Include) && stringSliceEqual(a.Exclude, b.Exclude)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
