package store

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/grippy/grippy/internal/agent"
	"github.com/grippy/grippy/pkg/errors"
)

// Embedder turns text into vectors for the semantic store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderOptions configures the embedding client.
type EmbedderOptions struct {
	Model     string
	BaseURL   string
	Transport string // "openai" or "local"
	APIKey    string
}

// openAIEmbedder backs Embedder with an OpenAI-compatible embeddings
// endpoint, local or hosted.
type openAIEmbedder struct {
	llm *openai.LLM
}

// NewEmbedder creates an embedding client for the given transport.
func NewEmbedder(opts EmbedderOptions) (Embedder, error) {
	key := opts.APIKey
	switch opts.Transport {
	case agent.TransportOpenAI:
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, errors.New(errors.ErrCodeConfigMissing, "OPENAI_API_KEY not set for openai transport")
		}
	case agent.TransportLocal:
		if key == "" {
			key = "lm-studio"
		}
	default:
		return nil, errors.ErrTransport(opts.Transport)
	}

	llmOpts := []openai.Option{
		openai.WithToken(key),
		openai.WithEmbeddingModel(opts.Model),
	}
	if opts.Transport == agent.TransportLocal || opts.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(opts.BaseURL))
	}

	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedding, "failed to create embedding client", err)
	}
	return &openAIEmbedder{llm: llm}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedding, "embedding request failed", err)
	}
	if len(vecs) != len(texts) {
		return nil, errors.New(errors.ErrCodeEmbedding, "embedding count mismatch")
	}
	return vecs, nil
}
