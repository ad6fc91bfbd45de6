package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// Compile-time interface check.
var _ Gateway = (*OpenAI)(nil)

// OpenAI calls the OpenAI embeddings API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a gateway using OPENAI_API_KEY from the
// environment.
func NewOpenAI(model string) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	return &OpenAI{client: openai.NewClient(key), model: model}, nil
}

func (o *OpenAI) Model() string { return "openai/" + o.model }

// Embed requests embeddings for a batch of texts. The API returns one
// vector per input; order is preserved and verified.
func (o *OpenAI) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(context.Background(), openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (o *OpenAI) EmbedOne(text string) ([]float32, error) {
	vecs, err := o.Embed([]string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
