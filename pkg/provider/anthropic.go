package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/errors"
)

func newAnthropicClient(key string, opts ...option.RequestOption) *anthropic.Client {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(key)}, opts...)...)
	return &client
}

/*
AnthropicGenerator answers prompts through the messages endpoint. Anthropic
has no embedding API, so it only serves as a Generator.
*/
type AnthropicGenerator struct {
	client      *anthropic.Client
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type AnthropicGeneratorOption func(*AnthropicGenerator)

func NewAnthropicGenerator(options ...AnthropicGeneratorOption) *AnthropicGenerator {
	prvdr := &AnthropicGenerator{MaxTokens: 1024}

	for _, option := range options {
		option(prvdr)
	}

	return prvdr
}

func (prvdr *AnthropicGenerator) Generate(ctx context.Context, system, prompt string) (Completion, error) {
	ctx, cancel := withTimeout(ctx, prvdr.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(prvdr.Model),
		MaxTokens:   int64(prvdr.MaxTokens),
		Temperature: anthropic.Float(prvdr.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := prvdr.client.Messages.New(ctx, params)

	if err != nil {
		log.Error("anthropic completion failed", "model", prvdr.Model, "error", err)
		return Completion{}, fmt.Errorf("%w: anthropic: %v", errors.ErrUnavailable, err)
	}

	builder := strings.Builder{}

	for _, block := range resp.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}

	return Completion{
		Text:  builder.String(),
		Model: string(resp.Model),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func WithAnthropicGeneratorClient(client *anthropic.Client) AnthropicGeneratorOption {
	return func(prvdr *AnthropicGenerator) {
		prvdr.client = client
	}
}

func WithAnthropicGeneratorSettings(model string, temperature float64, maxTokens int, timeout time.Duration) AnthropicGeneratorOption {
	return func(prvdr *AnthropicGenerator) {
		prvdr.Model = model
		prvdr.Temperature = temperature
		prvdr.Timeout = timeout

		if maxTokens > 0 {
			prvdr.MaxTokens = maxTokens
		}
	}
}
