package store

import "errors"

// ErrMissingBatch is returned by ApplyFileUpdates when a path listed as
// new or updated arrives without exactly one chunk batch. It indicates a
// caller bug, never a recoverable runtime condition.
var ErrMissingBatch = errors.New("store: new or updated path has no chunk batch")

// Store persists the file catalog, chunks, and packed embeddings, and
// answers linear similarity queries. Mutating calls are atomic: a
// failure leaves the previously committed index fully intact.
type Store interface {
	// ReplaceIndex discards the entire index and writes the given
	// snapshot in one transaction.
	ReplaceIndex(root string, batches []FileChunks, cfg IndexConfig) error

	// ApplyFileUpdates patches the index in one transaction: chunks for
	// removed and updated paths are deleted, file rows for removed paths
	// are deleted, file rows for new and updated paths are upserted, and
	// the supplied chunk batches are inserted. Every path in
	// newPaths ∪ updatedPaths must be covered by exactly one batch.
	ApplyFileUpdates(root string, batches []FileChunks, newPaths, updatedPaths, removedPaths []string, cfg IndexConfig) error

	// Search ranks stored chunks by cosine similarity to the query and
	// returns up to limit results. Chunks whose embedding dimension does
	// not match the query are skipped. An empty or zero-norm query, or a
	// non-positive limit, yields an empty result set.
	Search(query []float32, limit int) ([]SearchResult, error)

	// Files returns the persisted catalog snapshot, sorted by path.
	Files() ([]FileRecord, error)

	// Metadata returns the singleton index metadata, or nil if no index
	// has ever been committed.
	Metadata() (*IndexMetadata, error)

	// Stats reports index counters and the active configuration.
	Stats() (*Stats, error)

	Close() error
}
