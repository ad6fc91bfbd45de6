// Package engine composes the scanner, planner, chunker, store, and
// embedding gateway into the two public operations: Index and Recall.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"ragrep/internal/catalog"
	"ragrep/internal/chunker"
	"ragrep/internal/embedder"
	"ragrep/internal/planner"
	"ragrep/internal/store"
)

// embedBatchSize caps how many texts go to the gateway per request.
const embedBatchSize = 32

// ErrVectorCount reports a gateway that returned a vector list not
// positionally matching the submitted texts. Chunk-to-vector
// association is purely positional, so this must fail fast.
var ErrVectorCount = errors.New("engine: embedding gateway returned mismatched vector count")

// Config holds the engine configuration.
type Config struct {
	StorePath    string // SQLite database location
	Gateway      embedder.Gateway
	ChunkSize    int
	ChunkOverlap int
	Extensions   []string              // file types to index; defaults apply when empty
	Ignore       func(rel string) bool // exclusion policy, e.g. gitignore rules
	ModelCache   string                // embedding model cache dir, never indexed
	Logger       *slog.Logger
}

// Engine owns one open store handle. It is a single-writer,
// single-process component: Index and Recall are synchronous and every
// mutation happens inside one store transaction.
type Engine struct {
	st      store.Store
	gateway embedder.Gateway
	chunks  *chunker.Chunker
	scan    *catalog.Scanner
	logger  *slog.Logger
}

// New creates an Engine backed by the SQLite store at cfg.StorePath.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.Open(cfg.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e, err := NewWithStore(st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	return e, nil
}

// NewWithStore creates an Engine on an already-open store. The engine
// takes ownership of the handle and closes it in Close.
func NewWithStore(st store.Store, cfg Config) (*Engine, error) {
	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []catalog.Option{
		catalog.WithLogger(logger),
		catalog.WithExcludedPaths(cfg.StorePath, cfg.ModelCache),
	}
	if len(cfg.Extensions) > 0 {
		opts = append(opts, catalog.WithExtensions(cfg.Extensions))
	}
	if cfg.Ignore != nil {
		opts = append(opts, catalog.WithIgnore(cfg.Ignore))
	}

	return &Engine{
		st:      st,
		gateway: cfg.Gateway,
		chunks:  ch,
		scan:    catalog.New(opts...),
		logger:  logger,
	}, nil
}

// config returns the active index configuration for planning and
// metadata writes.
func (e *Engine) config() store.IndexConfig {
	return store.IndexConfig{
		ModelID:      e.gateway.Model(),
		ChunkSize:    e.chunks.Size(),
		ChunkOverlap: e.chunks.Overlap(),
	}
}

// Index brings the store in line with the directory tree at root. The
// embedding gateway is invoked only for files the planner marks as new
// or updated; an up-to-date index returns without any embedding work.
func (e *Engine) Index(root string, force bool) (*IndexResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	current, skipped, err := e.scan.Enumerate(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", absRoot, err)
	}

	persisted, err := e.st.Files()
	if err != nil {
		return nil, fmt.Errorf("load persisted catalog: %w", err)
	}
	meta, err := e.st.Metadata()
	if err != nil {
		return nil, fmt.Errorf("load index metadata: %w", err)
	}

	plan := planner.BuildPlan(planner.Input{
		Root:      absRoot,
		Current:   current,
		Persisted: persisted,
		Meta:      meta,
		Config:    e.config(),
		Force:     force,
	})

	result := &IndexResult{
		Root:         absRoot,
		Reason:       plan.Reason,
		Files:        len(current),
		FilesSkipped: skipped,
		FullRebuild:  plan.FullRebuild,
		NewFiles:     plan.NewFiles,
		UpdatedFiles: plan.UpdatedFiles,
		RemovedFiles: plan.RemovedFiles,
	}

	if !plan.NeedsIndex {
		e.logger.Info("index is current", "root", absRoot, "files", len(current))
		return e.finishResult(result)
	}

	var targets []store.FileRecord
	if plan.FullRebuild {
		targets = current
	} else {
		wanted := make(map[string]bool, len(plan.NewFiles)+len(plan.UpdatedFiles))
		for _, p := range plan.NewFiles {
			wanted[p] = true
		}
		for _, p := range plan.UpdatedFiles {
			wanted[p] = true
		}
		for _, f := range current {
			if wanted[f.Path] {
				targets = append(targets, f)
			}
		}
	}

	batches, unreadable, err := e.buildBatches(absRoot, targets)
	if err != nil {
		return nil, err
	}
	result.FilesSkipped += len(unreadable)

	if plan.FullRebuild {
		err = e.st.ReplaceIndex(absRoot, batches, e.config())
	} else {
		// A file that became unreadable between scan and read carries no
		// batch; drop it from the patch rather than failing the store's
		// coverage precondition.
		newPaths := pruneSkipped(plan.NewFiles, unreadable)
		updatedPaths := pruneSkipped(plan.UpdatedFiles, unreadable)
		err = e.st.ApplyFileUpdates(absRoot, batches, newPaths, updatedPaths, plan.RemovedFiles, e.config())
	}
	if err != nil {
		return nil, fmt.Errorf("commit index: %w", err)
	}

	result.Indexed = true
	result.IndexedFiles = len(batches)
	for _, b := range batches {
		result.ChunksIndexed += len(b.Chunks)
	}

	e.logger.Info("index committed",
		"root", absRoot,
		"reason", plan.Reason,
		"full_rebuild", plan.FullRebuild,
		"indexed_files", result.IndexedFiles,
		"chunks_indexed", result.ChunksIndexed)

	return e.finishResult(result)
}

// buildBatches reads, chunks, and embeds the target files. Unreadable
// or non-UTF-8 files are skipped and reported back by path; gateway
// failures abort the whole batch.
func (e *Engine) buildBatches(root string, targets []store.FileRecord) ([]store.FileChunks, map[string]bool, error) {
	var batches []store.FileChunks
	unreadable := make(map[string]bool)

	for _, f := range targets {
		src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			e.logger.Warn("skipping unreadable file", "path", f.Path, "error", err)
			unreadable[f.Path] = true
			continue
		}
		if !utf8.Valid(src) {
			e.logger.Warn("skipping non-utf8 file", "path", f.Path)
			unreadable[f.Path] = true
			continue
		}

		chunks := e.chunks.Chunk(f.Path, string(src))
		if len(chunks) == 0 {
			unreadable[f.Path] = true
			continue
		}

		vectors, err := e.embedChunks(chunks)
		if err != nil {
			return nil, nil, fmt.Errorf("embed %s: %w", f.Path, err)
		}

		batches = append(batches, store.FileChunks{File: f, Chunks: chunks, Vectors: vectors})
	}
	return batches, unreadable, nil
}

// embedChunks sends chunk texts to the gateway in sub-batches and
// verifies the positional contract before anything reaches the store.
func (e *Engine) embedChunks(chunks []store.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := min(i+embedBatchSize, len(texts))
		vecs, err := e.gateway.Embed(texts[i:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts, %d vectors", ErrVectorCount, len(texts), len(vectors))
	}
	return vectors, nil
}

func pruneSkipped(paths []string, skipped map[string]bool) []string {
	if len(skipped) == 0 {
		return paths
	}
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if !skipped[p] {
			kept = append(kept, p)
		}
	}
	return kept
}

// finishResult fills in the post-commit chunk total from store stats.
func (e *Engine) finishResult(result *IndexResult) (*IndexResult, error) {
	st, err := e.st.Stats()
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	result.Chunks = st.TotalChunks
	return result, nil
}

// Recall answers a similarity query. With autoIndex set it first runs
// Index against path, the store's persisted root, or the current
// directory, in that order of preference. The query is embedded exactly
// once and searched exactly once.
func (e *Engine) Recall(query string, limit int, path string, autoIndex bool) (*RecallResult, error) {
	result := &RecallResult{Query: query}

	if autoIndex {
		root := path
		if root == "" {
			meta, err := e.st.Metadata()
			if err != nil {
				return nil, fmt.Errorf("load index metadata: %w", err)
			}
			if meta != nil && meta.Root != "" {
				root = meta.Root
			} else {
				root = "."
			}
		}
		idx, err := e.Index(root, false)
		if err != nil {
			return nil, fmt.Errorf("auto-index: %w", err)
		}
		result.AutoIndex = idx
	}

	qvec, err := e.gateway.EmbedOne(query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := e.st.Search(qvec, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	result.Matches = matches
	result.Count = len(matches)
	return result, nil
}

// Stats reports the persisted index state.
func (e *Engine) Stats() (*store.Stats, error) {
	return e.st.Stats()
}

// Close releases the store handle.
func (e *Engine) Close() error {
	return e.st.Close()
}
