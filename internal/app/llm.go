package app

import (
	"context"

	"askcorpus/internal/ai"
)

// Embedder maps text to a fixed-length vector. Must be deterministic for
// identical input so re-ingestion stays idempotent.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a streamed completion, forwarding each increment to
// onDelta. The stream is finite and not restartable.
type Generator interface {
	Stream(ctx context.Context, messages []ai.ChatMessage, onDelta func(delta string) error) (string, error)
}

// AIEmbedder binds the shared OpenAI-compatible client to one embedding
// model configuration.
type AIEmbedder struct {
	client *ai.Client
	cfg    ai.EmbeddingConfig
}

func NewAIEmbedder(client *ai.Client, cfg ai.EmbeddingConfig) *AIEmbedder {
	return &AIEmbedder{client: client, cfg: cfg}
}

func (e *AIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, e.cfg, text)
}

func (e *AIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, e.cfg, texts)
}

// AIGenerator binds the shared client to one generation model
// configuration.
type AIGenerator struct {
	client *ai.Client
	cfg    ai.GenerationConfig
}

func NewAIGenerator(client *ai.Client, cfg ai.GenerationConfig) *AIGenerator {
	return &AIGenerator{client: client, cfg: cfg}
}

func (g *AIGenerator) Stream(ctx context.Context, messages []ai.ChatMessage, onDelta func(delta string) error) (string, error) {
	return g.client.StreamCompletion(ctx, g.cfg, messages, onDelta)
}
