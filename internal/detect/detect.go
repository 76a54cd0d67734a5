package detect

import (
	"context"
	"sort"

	"foldermcp/internal/model"
)

// Detect classifies current against the previous snapshot. A nil previous
// map means no snapshot exists, which forces a full reindex: every current
// file is new. Files whose size and mtime both match their snapshot entry
// are taken as unchanged without reading them; everything else is hashed,
// and a matching hash (a bare touch) still counts as unchanged.
//
// Detect fills ContentHash on every returned stat it hashed or carried over,
// so callers can persist the result as the next snapshot.
func Detect(ctx context.Context, current []model.FileStat, previous map[string]model.FileStat) (model.ChangeSet, []model.FileStat, error) {
	fullReindex := previous == nil

	cs := model.ChangeSet{}
	enriched := make([]model.FileStat, 0, len(current))
	seen := make(map[string]struct{}, len(current))

	for _, stat := range current {
		if err := ctx.Err(); err != nil {
			return model.ChangeSet{}, nil, err
		}
		seen[stat.RelPath] = struct{}{}

		prev, known := previous[stat.RelPath]
		if known && prev.SizeBytes == stat.SizeBytes && prev.MTimeUnix == stat.MTimeUnix {
			stat.ContentHash = prev.ContentHash
			cs.Unchanged = append(cs.Unchanged, stat.RelPath)
			enriched = append(enriched, stat)
			continue
		}

		hash, err := HashFile(stat.AbsPath)
		if err != nil {
			// Unreadable now; drop it and let the next scan decide.
			continue
		}
		stat.ContentHash = hash
		enriched = append(enriched, stat)

		switch {
		case !known:
			cs.New = append(cs.New, stat.RelPath)
			cs.Summary.EstimatedCostBytes += stat.SizeBytes
		case prev.ContentHash == hash:
			cs.Unchanged = append(cs.Unchanged, stat.RelPath)
		default:
			cs.Modified = append(cs.Modified, stat.RelPath)
			cs.Summary.EstimatedCostBytes += stat.SizeBytes
		}
	}

	for relPath := range previous {
		if _, ok := seen[relPath]; !ok {
			cs.Deleted = append(cs.Deleted, relPath)
		}
	}

	sort.Strings(cs.New)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Deleted)
	sort.Strings(cs.Unchanged)

	cs.Summary.TotalChanges = len(cs.New) + len(cs.Modified) + len(cs.Deleted)
	cs.Summary.RequiresFullReindex = fullReindex && len(current) > 0
	return cs, enriched, nil
}

// Snapshot converts enriched stats into the map persisted between runs.
func Snapshot(stats []model.FileStat) map[string]model.FileStat {
	out := make(map[string]model.FileStat, len(stats))
	for _, s := range stats {
		out[s.RelPath] = s
	}
	return out
}
