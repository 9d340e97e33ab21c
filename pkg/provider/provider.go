/*
Package provider adapts hosted and local model APIs to the two roles the
memory system needs from them: turning text into unit-length embeddings and
generating a completion from an assembled prompt.
*/
package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

// Usage is the token accounting reported by a generation.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Completion is the text a Generator produced along with its usage.
type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

/*
Generator produces a completion for prompt, steered by the system
instruction.
*/
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (Completion, error)
}

/*
NewEmbedder selects the embedding provider named in cfg. Every remote
embedder returns vectors of exactly dim components, normalized to unit
length. An empty or unknown name, or a remote provider missing its
credentials, falls back to the deterministic embedder.
*/
func NewEmbedder(ctx context.Context, cfg config.Provider, dim int) (memory.Embedder, error) {
	fallback := func(reason string) (memory.Embedder, error) {
		if reason != "" {
			log.Warn("using deterministic embedder", "embedder", cfg.Embedder, "reason", reason)
		}

		return memory.NewDeterministicEmbedder(dim)
	}

	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", errors.ErrInvalidConfig, dim)
	}

	switch strings.ToLower(cfg.Embedder) {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")

		if key == "" {
			return fallback("OPENAI_API_KEY is not set")
		}

		return NewOpenAIEmbedder(
			WithOpenAIEmbedderClient(newOpenAIClient(key)),
			WithOpenAIEmbedderModel(orDefault(cfg.EmbeddingModel, "text-embedding-3-small")),
			WithOpenAIEmbedderDimensions(dim),
			WithOpenAIEmbedderTimeout(cfg.Timeout),
		), nil
	case "ollama":
		client, err := newOllamaClient()

		if err != nil {
			return fallback(err.Error())
		}

		return NewOllamaEmbedder(
			WithOllamaEmbedderClient(client),
			WithOllamaEmbedderModel(orDefault(cfg.EmbeddingModel, "nomic-embed-text")),
			WithOllamaEmbedderDimensions(dim),
			WithOllamaEmbedderTimeout(cfg.Timeout),
		), nil
	case "cohere":
		key := os.Getenv("COHERE_API_KEY")

		if key == "" {
			return fallback("COHERE_API_KEY is not set")
		}

		return NewCohereEmbedder(
			WithCohereEmbedderClient(newCohereClient(key)),
			WithCohereEmbedderModel(orDefault(cfg.EmbeddingModel, "embed-english-v3.0")),
			WithCohereEmbedderDimensions(dim),
			WithCohereEmbedderTimeout(cfg.Timeout),
		), nil
	case "google", "gemini":
		client, err := newGoogleClient(ctx)

		if err != nil {
			return fallback(err.Error())
		}

		return NewGoogleEmbedder(
			WithGoogleEmbedderClient(client),
			WithGoogleEmbedderModel(orDefault(cfg.EmbeddingModel, "text-embedding-004")),
			WithGoogleEmbedderDimensions(dim),
			WithGoogleEmbedderTimeout(cfg.Timeout),
		), nil
	case "", "fallback", "deterministic":
		return fallback("")
	default:
		return fallback("unknown embedder")
	}
}

/*
NewGenerator selects the generation provider named in cfg. It returns a nil
Generator when none is configured or the provider has no credentials, in
which case callers answer from recalled memory alone.
*/
func NewGenerator(cfg config.Provider) Generator {
	switch strings.ToLower(cfg.Generator) {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")

		if key == "" {
			log.Warn("generator disabled", "generator", cfg.Generator, "reason", "OPENAI_API_KEY is not set")
			return nil
		}

		return NewOpenAIGenerator(
			WithOpenAIGeneratorClient(newOpenAIClient(key)),
			WithOpenAIGeneratorSettings(orDefault(cfg.Model, "gpt-4o-mini"), cfg.Temperature, cfg.MaxTokens, cfg.Timeout),
		)
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")

		if key == "" {
			log.Warn("generator disabled", "generator", cfg.Generator, "reason", "ANTHROPIC_API_KEY is not set")
			return nil
		}

		return NewAnthropicGenerator(
			WithAnthropicGeneratorClient(newAnthropicClient(key)),
			WithAnthropicGeneratorSettings(orDefault(cfg.Model, "claude-3-5-haiku-latest"), cfg.Temperature, cfg.MaxTokens, cfg.Timeout),
		)
	case "":
		return nil
	default:
		log.Warn("generator disabled", "generator", cfg.Generator, "reason", "unknown generator")
		return nil
	}
}

/*
fit pads or truncates v to dim components and normalizes the result, so a
provider whose native size differs from the collection still lines up.
*/
func fit[T float32 | float64](v []T, dim int) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty embedding", errors.ErrUnavailable)
	}

	if dim > 0 && len(v) != dim {
		resized := make([]T, dim)
		copy(resized, v)
		v = resized
	}

	return memory.Normalize(v), nil
}

func fitAll[T float32 | float64](vectors [][]T, want, dim int) ([][]float32, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", errors.ErrUnavailable, want, len(vectors))
	}

	out := make([][]float32, len(vectors))

	for i, v := range vectors {
		fitted, err := fit(v, dim)

		if err != nil {
			return nil, err
		}

		out[i] = fitted
	}

	return out, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
