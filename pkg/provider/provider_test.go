package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	openaioption "github.com/openai/openai-go/option"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

func TestFit(t *testing.T) {
	Convey("Given raw provider vectors", t, func() {
		Convey("Then a vector of the right size should only be normalized", func() {
			out, err := fit([]float64{3, 4}, 2)
			So(err, ShouldBeNil)
			So(out[0], ShouldAlmostEqual, 0.6, 1e-6)
			So(out[1], ShouldAlmostEqual, 0.8, 1e-6)
		})

		Convey("Then a short vector should be zero padded", func() {
			out, err := fit([]float32{3, 4}, 3)
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 3)
			So(out[2], ShouldEqual, 0)
		})

		Convey("Then a long vector should be truncated", func() {
			out, err := fit([]float32{0, 5, 9, 9}, 2)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, []float32{0, 1})
		})

		Convey("Then an empty vector should be an error", func() {
			_, err := fit([]float32{}, 2)
			So(errors.Is(err, errors.ErrUnavailable), ShouldBeTrue)
		})

		Convey("Then a short batch should be an error", func() {
			_, err := fitAll([][]float32{{1}}, 2, 1)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestNewEmbedder(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("COHERE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	ctx := context.Background()

	for _, name := range []string{"", "fallback", "openai", "cohere", "google", "nonsense"} {
		embedder, err := NewEmbedder(ctx, config.Provider{Embedder: name}, 16)
		require.NoError(t, err, name)

		_, ok := embedder.(*memory.DeterministicEmbedder)
		assert.True(t, ok, name)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")

	embedder, err := NewEmbedder(ctx, config.Provider{Embedder: "OpenAI"}, 16)
	require.NoError(t, err)

	openaiEmbedder, ok := embedder.(*OpenAIEmbedder)
	require.True(t, ok)
	assert.Equal(t, "text-embedding-3-small", openaiEmbedder.Model)
	assert.Equal(t, 16, openaiEmbedder.Dimensions)

	_, err = NewEmbedder(ctx, config.Provider{}, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestNewGenerator(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	assert.Nil(t, NewGenerator(config.Provider{}))
	assert.Nil(t, NewGenerator(config.Provider{Generator: "openai"}))
	assert.Nil(t, NewGenerator(config.Provider{Generator: "anthropic"}))
	assert.Nil(t, NewGenerator(config.Provider{Generator: "nonsense"}))

	t.Setenv("ANTHROPIC_API_KEY", "key")

	generator, ok := NewGenerator(config.Provider{Generator: "anthropic", MaxTokens: 300}).(*AnthropicGenerator)
	require.True(t, ok)
	assert.Equal(t, "claude-3-5-haiku-latest", generator.Model)
	assert.Equal(t, 300, generator.MaxTokens)
}

func TestOpenAIEmbedder(t *testing.T) {
	Convey("Given an OpenAI compatible embeddings endpoint", t, func() {
		var (
			path    string
			request map[string]any
		)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			json.NewDecoder(r.Body).Decode(&request)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
				{"object":"embedding","index":1,"embedding":[0,2]},
				{"object":"embedding","index":0,"embedding":[3,4]}
			],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
		}))
		defer server.Close()

		embedder := NewOpenAIEmbedder(
			WithOpenAIEmbedderClient(newOpenAIClient("sk-test",
				openaioption.WithBaseURL(server.URL+"/"),
				openaioption.WithMaxRetries(0),
			)),
			WithOpenAIEmbedderModel("text-embedding-3-small"),
			WithOpenAIEmbedderDimensions(2),
		)

		Convey("When a batch is embedded", func() {
			vectors, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})

			Convey("Then vectors should follow the input order and be unit length", func() {
				So(err, ShouldBeNil)
				So(len(vectors), ShouldEqual, 2)
				So(vectors[0][0], ShouldAlmostEqual, 0.6, 1e-6)
				So(vectors[0][1], ShouldAlmostEqual, 0.8, 1e-6)
				So(vectors[1], ShouldResemble, []float32{0, 1})
			})

			Convey("Then the requested size should be sent", func() {
				So(strings.HasSuffix(path, "/embeddings"), ShouldBeTrue)
				So(request["dimensions"], ShouldEqual, 2.0)
				So(request["model"], ShouldEqual, "text-embedding-3-small")
			})
		})
	})
}

func TestOpenAIGenerator(t *testing.T) {
	Convey("Given an OpenAI compatible chat endpoint", t, func() {
		var (
			path    string
			request map[string]any
		)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			json.NewDecoder(r.Body).Decode(&request)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
				"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Use a virtualenv."}}],
				"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
		}))
		defer server.Close()

		generator := NewOpenAIGenerator(
			WithOpenAIGeneratorClient(newOpenAIClient("sk-test",
				openaioption.WithBaseURL(server.URL+"/"),
				openaioption.WithMaxRetries(0),
			)),
			WithOpenAIGeneratorSettings("gpt-4o-mini", 0.7, 200, 0),
		)

		completion, err := generator.Generate(context.Background(), "be brief", "python packaging?")

		Convey("Then the answer and usage should be returned", func() {
			So(err, ShouldBeNil)
			So(completion.Text, ShouldEqual, "Use a virtualenv.")
			So(completion.Usage, ShouldResemble, Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16})
		})

		Convey("Then the system instruction should precede the prompt", func() {
			So(strings.HasSuffix(path, "/chat/completions"), ShouldBeTrue)

			messages := request["messages"].([]any)
			So(len(messages), ShouldEqual, 2)
			So(messages[0].(map[string]any)["role"], ShouldEqual, "system")
			So(messages[1].(map[string]any)["role"], ShouldEqual, "user")
		})
	})
}

func TestAnthropicGenerator(t *testing.T) {
	Convey("Given an Anthropic compatible messages endpoint", t, func() {
		var path string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
				"content":[{"type":"text","text":"Hello "},{"type":"text","text":"again."}],
				"stop_reason":"end_turn","usage":{"input_tokens":7,"output_tokens":3}}`))
		}))
		defer server.Close()

		generator := NewAnthropicGenerator(
			WithAnthropicGeneratorClient(newAnthropicClient("key",
				anthropicoption.WithBaseURL(server.URL+"/"),
				anthropicoption.WithMaxRetries(0),
			)),
			WithAnthropicGeneratorSettings("claude-3-5-haiku-latest", 0.2, 0, 0),
		)

		completion, err := generator.Generate(context.Background(), "", "hi")

		Convey("Then the text blocks should be joined and usage summed", func() {
			So(err, ShouldBeNil)
			So(strings.HasSuffix(path, "/v1/messages"), ShouldBeTrue)
			So(completion.Text, ShouldEqual, "Hello again.")
			So(completion.Usage.TotalTokens, ShouldEqual, 10)
			So(generator.MaxTokens, ShouldEqual, 1024)
		})
	})
}

func TestOllamaEmbedder(t *testing.T) {
	Convey("Given an Ollama daemon", t, func() {
		var calls int

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/embed" {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			calls++
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0,0,3,4]]}`))
		}))
		defer server.Close()

		base, err := url.Parse(server.URL)
		So(err, ShouldBeNil)

		embedder := NewOllamaEmbedder(
			WithOllamaEmbedderClient(api.NewClient(base, server.Client())),
			WithOllamaEmbedderModel("nomic-embed-text"),
			WithOllamaEmbedderDimensions(4),
		)

		vector, err := embedder.Embed(context.Background(), "hello")

		Convey("Then the vector should be normalized", func() {
			So(err, ShouldBeNil)
			So(calls, ShouldEqual, 1)
			So(vector[2], ShouldAlmostEqual, 0.6, 1e-6)
			So(vector[3], ShouldAlmostEqual, 0.8, 1e-6)
		})

		Convey("Then an empty batch should not call the daemon", func() {
			vectors, err := embedder.EmbedBatch(context.Background(), nil)
			So(err, ShouldBeNil)
			So(vectors, ShouldBeNil)
			So(calls, ShouldEqual, 1)
		})
	})
}
