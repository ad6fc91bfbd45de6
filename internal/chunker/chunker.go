// Package chunker splits file text into deterministic, overlapping
// windows. Chunk ids are a pure function of the file path, window
// ordinal, and byte range, so re-chunking an unmodified file with the
// same configuration reproduces identical ids.
package chunker

import (
	"errors"
	"fmt"
	"path"
	"strconv"

	"ragrep/internal/store"
)

// ErrInvalidOverlap is returned by New when the overlap does not
// satisfy 0 <= overlap < size.
var ErrInvalidOverlap = errors.New("chunker: overlap must satisfy 0 <= overlap < size")

// Chunker produces fixed-size overlapping windows over text.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window configuration once; Chunk never re-checks.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidOverlap, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into ordered windows of at most size bytes, each
// overlapping its predecessor by exactly the configured overlap. The
// final window may be shorter. Empty text yields no chunks; text no
// longer than one window yields exactly one.
func (c *Chunker) Chunk(filePath, text string) []store.Chunk {
	var chunks []store.Chunk
	for start := 0; start < len(text); {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}

		ordinal := len(chunks)
		chunks = append(chunks, store.Chunk{
			ID:          ChunkID(filePath, ordinal, start, end),
			FilePath:    filePath,
			Ordinal:     ordinal,
			StartOffset: start,
			EndOffset:   end,
			Text:        text[start:end],
			Metadata: map[string]string{
				"source":      filePath,
				"filename":    path.Base(filePath),
				"chunk_index": strconv.Itoa(ordinal),
				"start_char":  strconv.Itoa(start),
				"end_char":    strconv.Itoa(end),
			},
		})

		if end == len(text) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// ChunkID derives the stable identifier for a window.
func ChunkID(filePath string, ordinal, start, end int) string {
	return fmt.Sprintf("%s#%d@%d-%d", filePath, ordinal, start, end)
}
