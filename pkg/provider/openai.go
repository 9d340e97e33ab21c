package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theapemachine/recall/pkg/errors"
)

func newOpenAIClient(key string, opts ...option.RequestOption) *openai.Client {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(key)}, opts...)...)
	return &client
}

/*
OpenAIEmbedder embeds text through the OpenAI embeddings endpoint.
*/
type OpenAIEmbedder struct {
	api        *openai.Client
	Model      string
	Dimensions int
	Timeout    time.Duration
}

type OpenAIEmbedderOption func(*OpenAIEmbedder)

func NewOpenAIEmbedder(options ...OpenAIEmbedderOption) *OpenAIEmbedder {
	embedder := &OpenAIEmbedder{}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, e.Timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}

	// Only the third generation models accept a requested size.
	if e.Dimensions > 0 && strings.HasPrefix(e.Model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.Dimensions))
	}

	resp, err := e.api.Embeddings.New(ctx, params)

	if err != nil {
		log.Error("openai embedding failed", "model", e.Model, "error", err)
		return nil, fmt.Errorf("%w: openai: %v", errors.ErrUnavailable, err)
	}

	vectors := make([][]float64, len(resp.Data))

	for i, d := range resp.Data {
		if int(d.Index) < len(vectors) {
			vectors[d.Index] = d.Embedding
		} else {
			vectors[i] = d.Embedding
		}
	}

	return fitAll(vectors, len(texts), e.Dimensions)
}

func WithOpenAIEmbedderModel(model string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.Model = model
	}
}

func WithOpenAIEmbedderClient(client *openai.Client) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.api = client
	}
}

func WithOpenAIEmbedderDimensions(dim int) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.Dimensions = dim
	}
}

func WithOpenAIEmbedderTimeout(timeout time.Duration) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.Timeout = timeout
	}
}

/*
OpenAIGenerator answers prompts through the chat completions endpoint.
*/
type OpenAIGenerator struct {
	client      *openai.Client
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type OpenAIGeneratorOption func(*OpenAIGenerator)

func NewOpenAIGenerator(options ...OpenAIGeneratorOption) *OpenAIGenerator {
	prvdr := &OpenAIGenerator{}

	for _, option := range options {
		option(prvdr)
	}

	return prvdr
}

func (prvdr *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (Completion, error) {
	ctx, cancel := withTimeout(ctx, prvdr.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)

	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(prvdr.Model),
		Messages:    messages,
		Temperature: openai.Float(prvdr.Temperature),
	}

	if prvdr.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(prvdr.MaxTokens))
	}

	resp, err := prvdr.client.Chat.Completions.New(ctx, params)

	if err != nil {
		log.Error("openai completion failed", "model", prvdr.Model, "error", err)
		return Completion{}, fmt.Errorf("%w: openai: %v", errors.ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%w: openai returned no choices", errors.ErrUnavailable)
	}

	return Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func WithOpenAIGeneratorClient(client *openai.Client) OpenAIGeneratorOption {
	return func(prvdr *OpenAIGenerator) {
		prvdr.client = client
	}
}

func WithOpenAIGeneratorSettings(model string, temperature float64, maxTokens int, timeout time.Duration) OpenAIGeneratorOption {
	return func(prvdr *OpenAIGenerator) {
		prvdr.Model = model
		prvdr.Temperature = temperature
		prvdr.MaxTokens = maxTokens
		prvdr.Timeout = timeout
	}
}
