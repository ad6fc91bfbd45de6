package store

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// storedChunk is a chunk with its unpacked vector, kept in insertion
// order so tie-breaking matches the durable backend.
type storedChunk struct {
	chunk Chunk
	vec   []float32
	norm  float64
}

// MemoryStore implements Store entirely in memory. It backs tests and
// throwaway sessions; nothing survives the process.
type MemoryStore struct {
	mu     sync.Mutex
	files  map[string]FileRecord
	chunks []storedChunk
	meta   *IndexMetadata
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]FileRecord)}
}

func (m *MemoryStore) ReplaceIndex(root string, batches []FileChunks, cfg IndexConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make(map[string]FileRecord, len(batches))
	var chunks []storedChunk
	for _, b := range batches {
		if len(b.Chunks) != len(b.Vectors) {
			return fmt.Errorf("mismatched chunks (%d) and vectors (%d) for %s", len(b.Chunks), len(b.Vectors), b.File.Path)
		}
		files[b.File.Path] = b.File
		for i, c := range b.Chunks {
			chunks = append(chunks, newStoredChunk(c, b.Vectors[i]))
		}
	}

	m.files = files
	m.chunks = chunks
	m.meta = &IndexMetadata{Root: root, Config: cfg, IndexedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryStore) ApplyFileUpdates(root string, batches []FileChunks, newPaths, updatedPaths, removedPaths []string, cfg IndexConfig) error {
	byPath, err := batchIndex(batches, newPaths, updatedPaths)
	if err != nil {
		return err
	}

	for _, b := range batches {
		if len(b.Chunks) != len(b.Vectors) {
			return fmt.Errorf("mismatched chunks (%d) and vectors (%d) for %s", len(b.Chunks), len(b.Vectors), b.File.Path)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Stage the new state fully before swapping it in, so a caller
	// never observes a partial patch.
	files := make(map[string]FileRecord, len(m.files))
	for p, f := range m.files {
		files[p] = f
	}
	drop := make(map[string]bool, len(removedPaths)+len(updatedPaths))
	for _, p := range removedPaths {
		drop[p] = true
		delete(files, p)
	}
	for _, p := range updatedPaths {
		drop[p] = true
	}

	kept := m.chunks[:0:0]
	for _, sc := range m.chunks {
		if !drop[sc.chunk.FilePath] {
			kept = append(kept, sc)
		}
	}

	for _, p := range append(append([]string{}, newPaths...), updatedPaths...) {
		b := byPath[p]
		files[p] = b.File
		for i, c := range b.Chunks {
			kept = append(kept, newStoredChunk(c, b.Vectors[i]))
		}
	}

	m.files = files
	m.chunks = kept
	m.meta = &IndexMetadata{Root: root, Config: cfg, IndexedAt: time.Now().UTC()}
	return nil
}

func newStoredChunk(c Chunk, vec []float32) storedChunk {
	return storedChunk{chunk: c, vec: vec, norm: norm(vec)}
}

func (m *MemoryStore) Search(query []float32, limit int) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cands := make([]candidate, len(m.chunks))
	for i, sc := range m.chunks {
		cands[i] = candidate{
			result: SearchResult{ID: sc.chunk.ID, Text: sc.chunk.Text, Metadata: sc.chunk.Metadata},
			vec:    sc.vec,
			norm:   sc.norm,
		}
	}
	return rankCandidates(query, limit, cands), nil
}

func (m *MemoryStore) Files() ([]FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make([]FileRecord, 0, len(m.files))
	for _, f := range m.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (m *MemoryStore) Metadata() (*IndexMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta == nil {
		return nil, nil
	}
	md := *m.meta
	return &md, nil
}

func (m *MemoryStore) Stats() (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &Stats{Backend: "memory", TotalChunks: len(m.chunks), TotalFiles: len(m.files)}
	if m.meta != nil {
		st.ModelID = m.meta.Config.ModelID
		st.Root = m.meta.Root
		st.IndexedAt = m.meta.IndexedAt
		st.ChunkSize = m.meta.Config.ChunkSize
		st.Overlap = m.meta.Config.ChunkOverlap
	}
	return st, nil
}

func (m *MemoryStore) Close() error { return nil }
