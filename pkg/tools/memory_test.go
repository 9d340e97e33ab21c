package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/retrieval"
)

func newTestToolset() (*Toolset, *retrieval.Hub) {
	cfg := config.Default()
	cfg.Database.VectorDim = 32
	cfg.Activation.CacheSize = 0

	hub := retrieval.NewHub(cfg, memory.NewRegistry(cfg), nil)

	return New(hub), hub
}

func call(
	handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error),
	args map[string]any,
) (*mcp.CallToolResult, map[string]any) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	So(err, ShouldBeNil)
	So(result, ShouldNotBeNil)
	So(result.Content, ShouldNotBeEmpty)

	text := result.Content[0].(mcp.TextContent).Text
	out := map[string]any{}

	if !result.IsError {
		So(json.Unmarshal([]byte(text), &out), ShouldBeNil)
	}

	return result, out
}

func TestRegister(t *testing.T) {
	Convey("Given a toolset", t, func() {
		toolset, hub := newTestToolset()
		defer hub.Close(context.Background())

		Convey("Then every memory tool should be listed once", func() {
			names := map[string]bool{}

			for _, tool := range toolset.Tools() {
				names[tool.Tool.Name] = true
			}

			So(len(names), ShouldEqual, 9)

			for _, name := range []string{
				"memory_ingest", "memory_recall", "memory_respond", "memory_activate",
				"memory_reward", "memory_feedback", "memory_prefetch_stats", "memory_stats",
				"memory_reset",
			} {
				So(names[name], ShouldBeTrue)
			}
		})

		Convey("Then a server should be built with them", func() {
			So(NewServer(hub, "test"), ShouldNotBeNil)
		})
	})
}

func TestMemoryTools(t *testing.T) {
	Convey("Given a toolset over in-memory stores", t, func() {
		toolset, hub := newTestToolset()
		defer hub.Close(context.Background())

		Convey("When a tool is called without a user", func() {
			result, _ := call(toolset.handleIngest, map[string]any{"content": "hello"})

			Convey("Then it should return a tool error", func() {
				So(result.IsError, ShouldBeTrue)
			})
		})

		Convey("When blank content is ingested", func() {
			result, _ := call(toolset.handleIngest, map[string]any{"user_id": "alice", "content": " "})

			Convey("Then it should return a tool error", func() {
				So(result.IsError, ShouldBeTrue)
			})
		})

		Convey("When metadata is not valid JSON", func() {
			result, _ := call(toolset.handleIngest, map[string]any{
				"user_id":  "alice",
				"content":  "My Python code has a bug",
				"metadata": "{",
			})

			Convey("Then it should return a tool error", func() {
				So(result.IsError, ShouldBeTrue)
			})
		})

		Convey("When a technical utterance is ingested", func() {
			result, ingested := call(toolset.handleIngest, map[string]any{
				"user_id": "alice",
				"content": "My Python code has a bug",
			})

			So(result.IsError, ShouldBeFalse)
			id, _ := ingested["id"].(string)

			Convey("Then the chunk and its entities should be reported", func() {
				So(id, ShouldNotBeEmpty)
				So(ingested["task_type"], ShouldEqual, "technical_coding")
				So(ingested["entities"], ShouldContain, "Python")
				So(ingested["entities"], ShouldContain, "Bug")
				So(hub.Users(), ShouldResemble, []string{"alice"})
			})

			Convey("Then recall should find it", func() {
				result, recalled := call(toolset.handleRecall, map[string]any{
					"user_id": "alice",
					"query":   "Python bug",
				})

				So(result.IsError, ShouldBeFalse)
				So(recalled["task_type"], ShouldEqual, "technical_coding")
				So(recalled["items"], ShouldNotBeEmpty)
			})

			Convey("Then activation from a known cue should include it", func() {
				result, activated := call(toolset.handleActivate, map[string]any{
					"user_id": "alice",
					"cues":    []any{"Python"},
				})

				So(result.IsError, ShouldBeFalse)

				nodes, _ := activated["nodes"].([]any)
				So(nodes, ShouldNotBeEmpty)

				first, _ := nodes[0].(map[string]any)
				So(first["id"], ShouldEqual, "Python")
				So(first["energy"], ShouldEqual, 1.0)

				Convey("And rewarding the path should raise its energy", func() {
					result, rewarded := call(toolset.handleReward, map[string]any{
						"user_id": "alice",
						"path":    "Python",
						"reward":  0.5,
					})

					So(result.IsError, ShouldBeFalse)

					energies, _ := rewarded["energies"].(map[string]any)
					So(energies["Python"], ShouldEqual, 1.5)
				})
			})

			Convey("Then weighted cues should start at their own energy", func() {
				_, activated := call(toolset.handleActivate, map[string]any{
					"user_id": "alice",
					"cues":    map[string]any{"Python": 0.6},
				})

				nodes, _ := activated["nodes"].([]any)
				So(nodes, ShouldNotBeEmpty)

				first, _ := nodes[0].(map[string]any)
				So(first["energy"], ShouldEqual, 0.6)
			})

			Convey("Then useful feedback should be accepted", func() {
				result, scored := call(toolset.handleFeedback, map[string]any{
					"user_id":  "alice",
					"chunk_id": id,
					"feedback": "useful",
				})

				So(result.IsError, ShouldBeFalse)
				So(scored["significance"], ShouldBeGreaterThanOrEqualTo, ingested["significance"])
			})

			Convey("Then unknown feedback should be rejected", func() {
				result, _ := call(toolset.handleFeedback, map[string]any{
					"user_id":  "alice",
					"chunk_id": id,
					"feedback": "great",
				})

				So(result.IsError, ShouldBeTrue)
			})

			Convey("Then stats should count the memory", func() {
				_, stats := call(toolset.handleStats, map[string]any{"user_id": "alice"})

				store, _ := stats["memory"].(map[string]any)
				So(store["episodic_chunks"], ShouldEqual, 1.0)
				So(store["procedural_nodes"], ShouldEqual, 2.0)
			})

			Convey("Then a confirmed reset should forget it", func() {
				result, _ := call(toolset.handleReset, map[string]any{"user_id": "alice"})
				So(result.IsError, ShouldBeTrue)

				result, stats := call(toolset.handleReset, map[string]any{"user_id": "alice", "confirm": true})
				So(result.IsError, ShouldBeFalse)
				So(stats["episodic_chunks"], ShouldEqual, 0.0)
				So(stats["procedural_nodes"], ShouldEqual, 0.0)
			})
		})

		Convey("When activation has no cues", func() {
			result, _ := call(toolset.handleActivate, map[string]any{"user_id": "alice"})

			Convey("Then it should return a tool error", func() {
				So(result.IsError, ShouldBeTrue)
			})
		})

		Convey("When prefetch stats are read for a new user", func() {
			result, stats := call(toolset.handlePrefetchStats, map[string]any{"user_id": "bob"})

			Convey("Then the cache should be reported empty", func() {
				So(result.IsError, ShouldBeFalse)
				So(stats["cache_capacity"], ShouldEqual, 0.0)

				prefetch, _ := stats["prefetch"].(map[string]any)
				So(prefetch["total_prefetches"], ShouldEqual, 0.0)
			})
		})

		Convey("When a turn is answered without a generator", func() {
			result, response := call(toolset.handleRespond, map[string]any{
				"user_id": "carol",
				"query":   "How do I fix this Python exception?",
			})

			Convey("Then an extractive answer should come back", func() {
				So(result.IsError, ShouldBeFalse)
				So(response["answer"], ShouldNotBeEmpty)
				So(response["chunk_id"], ShouldNotBeEmpty)
			})
		})
	})
}

func TestArguments(t *testing.T) {
	Convey("Given loosely typed arguments", t, func() {
		args := map[string]any{
			"number": "0.25",
			"list":   "a, b,,c",
			"array":  []any{"x", 3, " y "},
			"object": `{"k": "v"}`,
		}

		Convey("Then they should be coerced", func() {
			So(floatArg(args, "number", 1), ShouldEqual, 0.25)
			So(floatArg(args, "missing", 1), ShouldEqual, 1)
			So(stringsArg(args, "list"), ShouldResemble, []string{"a", "b", "c"})
			So(stringsArg(args, "array"), ShouldResemble, []string{"x", "y"})

			object, err := objectArg(args, "object")
			So(err, ShouldBeNil)
			So(object["k"], ShouldEqual, "v")
		})
	})
}
