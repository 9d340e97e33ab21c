package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"github.com/theapemachine/recall/pkg/errors"
)

// newGoogleClient reads GEMINI_API_KEY, then GOOGLE_API_KEY.
func newGoogleClient(ctx context.Context) (*genai.Client, error) {
	key := os.Getenv("GEMINI_API_KEY")

	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}

	if key == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
}

/*
GoogleEmbedder embeds text with a Gemini embedding model, asking the API for
vectors of the configured size directly.
*/
type GoogleEmbedder struct {
	client     *genai.Client
	Model      string
	Dimensions int
	Timeout    time.Duration
}

type GoogleEmbedderOption func(*GoogleEmbedder)

func NewGoogleEmbedder(options ...GoogleEmbedderOption) *GoogleEmbedder {
	embedder := &GoogleEmbedder{}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *GoogleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *GoogleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, e.Timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))

	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}

	cfg := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}

	if e.Dimensions > 0 {
		dim := int32(e.Dimensions)
		cfg.OutputDimensionality = &dim
	}

	res, err := e.client.Models.EmbedContent(ctx, e.Model, contents, cfg)

	if err != nil {
		log.Error("google embedding failed", "model", e.Model, "error", err)
		return nil, fmt.Errorf("%w: google: %v", errors.ErrUnavailable, err)
	}

	vectors := make([][]float32, len(res.Embeddings))

	for i, embedding := range res.Embeddings {
		vectors[i] = embedding.Values
	}

	return fitAll(vectors, len(texts), e.Dimensions)
}

func WithGoogleEmbedderModel(model string) GoogleEmbedderOption {
	return func(e *GoogleEmbedder) {
		e.Model = model
	}
}

func WithGoogleEmbedderClient(client *genai.Client) GoogleEmbedderOption {
	return func(e *GoogleEmbedder) {
		e.client = client
	}
}

func WithGoogleEmbedderDimensions(dim int) GoogleEmbedderOption {
	return func(e *GoogleEmbedder) {
		e.Dimensions = dim
	}
}

func WithGoogleEmbedderTimeout(timeout time.Duration) GoogleEmbedderOption {
	return func(e *GoogleEmbedder) {
		e.Timeout = timeout
	}
}
