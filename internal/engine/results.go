package engine

import "ragrep/internal/store"

// IndexResult reports what one Index call did.
type IndexResult struct {
	Indexed       bool     `json:"indexed"`
	Reason        string   `json:"reason"`
	Root          string   `json:"root"`
	Files         int      `json:"files"`
	FilesSkipped  int      `json:"filesSkipped"`
	Chunks        int      `json:"chunks"`
	ChunksIndexed int      `json:"chunksIndexed"`
	IndexedFiles  int      `json:"indexedFiles"`
	NewFiles      []string `json:"newFiles"`
	UpdatedFiles  []string `json:"updatedFiles"`
	RemovedFiles  []string `json:"removedFiles"`
	FullRebuild   bool     `json:"fullRebuild"`
}

// RecallResult reports the matches for one similarity query. AutoIndex
// carries the preceding index result when recall was asked to refresh
// the store first.
type RecallResult struct {
	Query     string               `json:"query"`
	Matches   []store.SearchResult `json:"matches"`
	Count     int                  `json:"count"`
	AutoIndex *IndexResult         `json:"autoIndex,omitempty"`
}
