package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"github.com/theapemachine/recall/pkg/errors"
)

func newCohereClient(key string) *cohereclient.Client {
	return cohereclient.NewClient(
		cohereclient.WithToken(key),
	)
}

/*
CohereEmbedder embeds text with Cohere's embed endpoint. Memories are
embedded as search documents.
*/
type CohereEmbedder struct {
	api        *cohereclient.Client
	Model      string
	Dimensions int
	Timeout    time.Duration
}

type CohereEmbedderOption func(*CohereEmbedder)

func NewCohereEmbedder(options ...CohereEmbedderOption) *CohereEmbedder {
	embedder := &CohereEmbedder{}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, e.Timeout)
	defer cancel()

	model := e.Model
	inputType := cohere.EmbedInputTypeSearchDocument

	resp, err := e.api.Embed(ctx, &cohere.EmbedRequest{
		Model:     &model,
		Texts:     texts,
		InputType: &inputType,
	})

	if err != nil {
		log.Error("cohere embedding failed", "model", e.Model, "error", err)
		return nil, fmt.Errorf("%w: cohere: %v", errors.ErrUnavailable, err)
	}

	floats := resp.GetEmbeddingsFloats()

	if floats == nil {
		return nil, fmt.Errorf("%w: cohere returned no float embeddings", errors.ErrUnavailable)
	}

	return fitAll(floats.Embeddings, len(texts), e.Dimensions)
}

func WithCohereEmbedderModel(model string) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.Model = model
	}
}

func WithCohereEmbedderClient(client *cohereclient.Client) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.api = client
	}
}

func WithCohereEmbedderDimensions(dim int) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.Dimensions = dim
	}
}

func WithCohereEmbedderTimeout(timeout time.Duration) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.Timeout = timeout
	}
}
