package store

import "time"

// FileRecord describes one indexed file as of a catalog snapshot.
// Path is root-relative with forward slashes; MTimeNS is the file's
// modification time in nanoseconds and acts as the change signature
// together with Size.
type FileRecord struct {
	Path    string
	Size    int64
	MTimeNS int64
}

// Chunk is one overlapping window of a file's text, the unit stored
// and searched.
type Chunk struct {
	ID          string
	FilePath    string
	Ordinal     int
	StartOffset int
	EndOffset   int
	Text        string
	Metadata    map[string]string
}

// FileChunks pairs a file record with its chunks and their embedding
// vectors. Vectors correspond positionally to Chunks.
type FileChunks struct {
	File    FileRecord
	Chunks  []Chunk
	Vectors [][]float32
}

// IndexConfig is the configuration a snapshot was built with. Any
// difference between this and a caller's current configuration
// invalidates every stored chunk.
type IndexConfig struct {
	ModelID      string
	ChunkSize    int
	ChunkOverlap int
}

// IndexMetadata is the singleton metadata record committed alongside
// every successful index operation.
type IndexMetadata struct {
	Root      string
	Config    IndexConfig
	IndexedAt time.Time
}

// SearchResult is one ranked chunk returned from a similarity query.
// Score is cosine similarity; Distance is 1 - Score.
type SearchResult struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64
	Distance float64
}

// Stats summarizes the persisted index.
type Stats struct {
	Backend     string    `json:"backend"`
	PersistPath string    `json:"persistPath,omitempty"`
	TotalChunks int       `json:"totalChunks"`
	TotalFiles  int       `json:"totalFiles"`
	ModelID     string    `json:"model,omitempty"`
	Root        string    `json:"root,omitempty"`
	IndexedAt   time.Time `json:"indexedAt,omitzero"`
	ChunkSize   int       `json:"chunkSize,omitempty"`
	Overlap     int       `json:"chunkOverlap,omitempty"`
}
