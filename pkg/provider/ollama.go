package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ollama/ollama/api"

	"github.com/theapemachine/recall/pkg/errors"
)

// newOllamaClient honours OLLAMA_HOST, defaulting to the local daemon.
func newOllamaClient() (*api.Client, error) {
	return api.ClientFromEnvironment()
}

/*
OllamaEmbedder embeds text with a locally served Ollama model.
*/
type OllamaEmbedder struct {
	api        *api.Client
	Model      string
	Dimensions int
	Timeout    time.Duration
}

type OllamaEmbedderOption func(*OllamaEmbedder)

func NewOllamaEmbedder(options ...OllamaEmbedderOption) *OllamaEmbedder {
	embedder := &OllamaEmbedder{}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, e.Timeout)
	defer cancel()

	resp, err := e.api.Embed(ctx, &api.EmbedRequest{
		Model: e.Model,
		Input: texts,
	})

	if err != nil {
		log.Error("ollama embedding failed", "model", e.Model, "error", err)
		return nil, fmt.Errorf("%w: ollama: %v", errors.ErrUnavailable, err)
	}

	return fitAll(resp.Embeddings, len(texts), e.Dimensions)
}

func WithOllamaEmbedderModel(model string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.Model = model
	}
}

func WithOllamaEmbedderClient(client *api.Client) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.api = client
	}
}

func WithOllamaEmbedderDimensions(dim int) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.Dimensions = dim
	}
}

func WithOllamaEmbedderTimeout(timeout time.Duration) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.Timeout = timeout
	}
}
