// Package embedder provides the gateway to embedding models. The engine
// treats implementations as opaque: it hands over an ordered list of
// texts and requires a positionally corresponding list of vectors back.
package embedder

// Gateway turns text into fixed-dimension vectors.
type Gateway interface {
	// Embed returns one vector per input text, in input order.
	Embed(texts []string) ([][]float32, error)
	// EmbedOne embeds a single text.
	EmbedOne(text string) ([]float32, error)
	// Model identifies the active embedding model; the planner compares
	// it against the persisted identifier to invalidate stale chunks.
	Model() string
}
