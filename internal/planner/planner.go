// Package planner decides what an index run must do: nothing, an
// incremental patch, or a full rebuild. The decision is a pure function
// of the fresh catalog, the persisted catalog and metadata, the
// requested configuration, and the force flag.
package planner

import (
	"sort"
	"strings"

	"ragrep/internal/store"
)

// Plan is the planner's verdict. Path lists are sorted and only
// populated for incremental patches.
type Plan struct {
	NeedsIndex   bool
	FullRebuild  bool
	Reason       string
	NewFiles     []string
	UpdatedFiles []string
	RemovedFiles []string
}

// Input gathers everything the plan depends on. Persisted and Meta come
// from the store; Current from the scanner. Meta is nil when no index
// has ever been committed.
type Input struct {
	Root      string
	Current   []store.FileRecord
	Persisted []store.FileRecord
	Meta      *store.IndexMetadata
	Config    store.IndexConfig
	Force     bool
}

// BuildPlan applies the decision precedence: forced rebuild, missing or
// incompatible metadata, then the per-path catalog diff. Unchanged
// paths are never reprocessed.
func BuildPlan(in Input) Plan {
	if in.Force {
		return rebuild("forced reindex")
	}
	if in.Meta == nil {
		return rebuild("index has not been created yet")
	}
	if in.Meta.Root != in.Root {
		return rebuild("indexed root changed")
	}
	if in.Meta.Config.ModelID != in.Config.ModelID {
		return rebuild("embedding model changed")
	}
	if in.Meta.Config.ChunkSize != in.Config.ChunkSize {
		return rebuild("chunk size changed")
	}
	if in.Meta.Config.ChunkOverlap != in.Config.ChunkOverlap {
		return rebuild("chunk overlap changed")
	}

	newFiles, updated, removed := diffCatalogs(in.Current, in.Persisted)
	if len(newFiles) == 0 && len(updated) == 0 && len(removed) == 0 {
		return Plan{Reason: "index is current"}
	}

	var reasons []string
	if len(newFiles) > 0 {
		reasons = append(reasons, "new files detected")
	}
	if len(updated) > 0 {
		reasons = append(reasons, "updated files detected")
	}
	if len(removed) > 0 {
		reasons = append(reasons, "files removed")
	}

	return Plan{
		NeedsIndex:   true,
		Reason:       strings.Join(reasons, ", "),
		NewFiles:     newFiles,
		UpdatedFiles: updated,
		RemovedFiles: removed,
	}
}

func rebuild(reason string) Plan {
	return Plan{NeedsIndex: true, FullRebuild: true, Reason: reason}
}

// diffCatalogs computes the path-level set difference between the
// current and persisted catalogs. A path present in both counts as
// updated when its (size, mtime) signature differs.
func diffCatalogs(current, persisted []store.FileRecord) (newFiles, updated, removed []string) {
	prev := make(map[string]store.FileRecord, len(persisted))
	for _, f := range persisted {
		prev[f.Path] = f
	}

	seen := make(map[string]bool, len(current))
	for _, f := range current {
		seen[f.Path] = true
		old, ok := prev[f.Path]
		switch {
		case !ok:
			newFiles = append(newFiles, f.Path)
		case old.Size != f.Size || old.MTimeNS != f.MTimeNS:
			updated = append(updated, f.Path)
		}
	}
	for _, f := range persisted {
		if !seen[f.Path] {
			removed = append(removed, f.Path)
		}
	}

	sort.Strings(newFiles)
	sort.Strings(updated)
	sort.Strings(removed)
	return newFiles, updated, removed
}
