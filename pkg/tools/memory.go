package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/theapemachine/recall/pkg/activation"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/scoring"
)

func userParam() mcp.ToolOption {
	return mcp.WithString("user_id",
		mcp.Description("Identity whose memory is used"),
		mcp.Required(),
	)
}

func taskNames() []string {
	names := make([]string, 0, len(memory.TaskTypes))

	for _, task := range memory.TaskTypes {
		names = append(names, string(task))
	}

	return names
}

func buildIngestTool() mcp.Tool {
	return mcp.NewTool(
		"memory_ingest",
		mcp.WithDescription("Stores an utterance as episodic memory and adds the entities and relations found in it to the user's knowledge graphs."),
		userParam(),
		mcp.WithString("content",
			mcp.Description("Text to remember"),
			mcp.Required(),
		),
		mcp.WithObject("metadata",
			mcp.Description("Optional metadata; a task_type entry skips classification"),
		),
	)
}

func buildRecallTool() mcp.Tool {
	return mcp.NewTool(
		"memory_recall",
		mcp.WithDescription("Recalls the memories most relevant to a query, combining spreading activation over the graphs with episodic search."),
		userParam(),
		mcp.WithString("query",
			mcp.Description("Natural language query"),
			mcp.Required(),
		),
		mcp.WithString("task_type",
			mcp.Description("Task type to recall for; classified from the query when omitted"),
			mcp.Enum(taskNames()...),
		),
	)
}

func buildRespondTool() mcp.Tool {
	return mcp.NewTool(
		"memory_respond",
		mcp.WithDescription("Runs a full turn: remembers the query, recalls related memory and answers from it."),
		userParam(),
		mcp.WithString("query",
			mcp.Description("The user's message"),
			mcp.Required(),
		),
		mcp.WithObject("metadata",
			mcp.Description("Optional metadata for the stored message"),
		),
	)
}

func buildActivateTool() mcp.Tool {
	return mcp.NewTool(
		"memory_activate",
		mcp.WithDescription("Spreads activation energy from cue nodes across the user's graphs and returns the activated nodes."),
		userParam(),
		mcp.WithArray("cues",
			mcp.Description("Cue node ids, or an object mapping node id to initial energy"),
			mcp.Required(),
		),
		mcp.WithNumber("energy",
			mcp.Description("Initial energy for cues given as ids (default 1.0)"),
		),
		mcp.WithString("task_type",
			mcp.Description("Task type selecting the attention profile"),
			mcp.Enum(taskNames()...),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Traversal depth; the configured depth when omitted"),
		),
	)
}

func buildRewardTool() mcp.Tool {
	return mcp.NewTool(
		"memory_reward",
		mcp.WithDescription("Boosts the nodes along a path in the most recent activation, earlier nodes receiving more."),
		userParam(),
		mcp.WithArray("path",
			mcp.Description("Node ids in path order"),
			mcp.Required(),
		),
		mcp.WithNumber("reward",
			mcp.Description("Reward given to the first node"),
			mcp.Required(),
		),
	)
}

func buildFeedbackTool() mcp.Tool {
	return mcp.NewTool(
		"memory_feedback",
		mcp.WithDescription("Adjusts a memory's significance from user feedback and returns the new score."),
		userParam(),
		mcp.WithString("chunk_id",
			mcp.Description("Id of the episodic memory"),
			mcp.Required(),
		),
		mcp.WithString("feedback",
			mcp.Description("Kind of feedback"),
			mcp.Enum(
				string(scoring.FeedbackUseful),
				string(scoring.FeedbackNotUseful),
				string(scoring.FeedbackAccurate),
				string(scoring.FeedbackInaccurate),
			),
			mcp.Required(),
		),
		mcp.WithNumber("value",
			mcp.Description("Strength of the feedback (default 1.0)"),
		),
	)
}

func buildPrefetchStatsTool() mcp.Tool {
	return mcp.NewTool(
		"memory_prefetch_stats",
		mcp.WithDescription("Reports prefetch cache occupancy and how often primed nodes were used."),
		userParam(),
	)
}

func buildResetTool() mcp.Tool {
	return mcp.NewTool(
		"memory_reset",
		mcp.WithDescription("Deletes everything remembered for a user: episodic memory and both knowledge graphs."),
		userParam(),
		mcp.WithBoolean("confirm",
			mcp.Description("Must be true"),
			mcp.Required(),
		),
	)
}

func buildStatsTool() mcp.Tool {
	return mcp.NewTool(
		"memory_stats",
		mcp.WithDescription("Reports store sizes, session counters and the observed environment for a user."),
		userParam(),
	)
}

// nodeView is an activated node without its embedding.
type nodeView struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Energy float64 `json:"energy"`
}

func nodeViews(nodes []memory.ActivatedNode) []nodeView {
	out := make([]nodeView, 0, len(nodes))

	for _, activated := range nodes {
		out = append(out, nodeView{
			ID:     activated.Node.ID,
			Name:   activated.Node.Name(),
			Label:  activated.Node.Label,
			Energy: activated.Energy,
		})
	}

	return out
}

func (toolset *Toolset) handleIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	pipeline, err := toolset.pipeline(ctx, args)

	if err != nil {
		return errorResult("memory_ingest", err), nil
	}

	metadata, err := objectArg(args, "metadata")

	if err != nil {
		return errorResult("memory_ingest", err), nil
	}

	chunk, extraction, err := pipeline.Ingest(ctx, stringArg(args, "content"), metadata)

	if err != nil {
		return errorResult("memory_ingest", err), nil
	}

	entities := make([]string, 0, len(extraction.Nodes))

	for _, node := range extraction.Nodes {
		entities = append(entities, node.ID)
	}

	return jsonResult(map[string]any{
		"id":            chunk.ID,
		"task_type":     chunk.TaskType,
		"significance":  chunk.SignificanceScore,
		"entities":      entities,
		"relationships": len(extraction.Relationships),
	})
}

func (toolset *Toolset) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	pipeline, err := toolset.pipeline(ctx, args)

	if err != nil {
		return errorResult("memory_recall", err), nil
	}

	query := stringArg(args, "query")

	if strings.TrimSpace(query) == "" {
		return errorResult("memory_recall", fmt.Errorf("query parameter is required")), nil
	}

	task := pipeline.Classify(ctx, query)

	if name := stringArg(args, "task_type"); name != "" {
		task = memory.ParseTaskType(name)
	}

	recall, err := pipeline.Recall(ctx, query, task)

	if err != nil {
		return errorResult("memory_recall", err), nil
	}

	return jsonResult(map[string]any{
		"task_type":    recall.Task,
		"cues":         recall.Cues,
		"items":        recall.Items,
		"activated":    nodeViews(recall.Activation.Nodes),
		"total_energy": recall.Activation.TotalEnergy,
	})
}

func (toolset *Toolset) handleRespond(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	pipeline, err := toolset.pipeline(ctx, args)

	if err != nil {
		return errorResult("memory_respond", err), nil
	}

	metadata, err := objectArg(args, "metadata")

	if err != nil {
		return errorResult("memory_respond", err), nil
	}

	response, err := pipeline.Respond(ctx, stringArg(args, "query"), metadata)

	if err != nil {
		return errorResult("memory_respond", err), nil
	}

	return jsonResult(map[string]any{
		"answer":    response.Answer,
		"task_type": response.Task,
		"chunk_id":  response.Chunk.ID,
		"items":     response.Recall.Items,
		"metrics":   response.Metrics,
	})
}

func (toolset *Toolset) handleActivate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	pipeline, err := toolset.pipeline(ctx, args)

	if err != nil {
		return errorResult("memory_activate", err), nil
	}

	cues := cuesArg(args, floatArg(args, "energy", 1.0))

	if len(cues) == 0 {
		return errorResult("memory_activate", fmt.Errorf("cues parameter is required")), nil
	}

	task := memory.ParseTaskType(stringArg(args, "task_type"))
	depth := int(floatArg(args, "max_depth", 0))

	result, err := pipeline.Engine().SpreadingActivation(ctx, cues, task, depth)

	if err != nil {
		return errorResult("memory_activate", err), nil
	}

	episodes := make([]string, 0, len(result.Episodes))

	for _, episode := range result.Episodes {
		episodes = append(episodes, episode.Chunk.ID)
	}

	return jsonResult(map[string]any{
		"task_type":    task,
		"nodes":        nodeViews(result.Nodes),
		"expanded":     result.Expanded,
		"episodes":     episodes,
		"total_energy": result.TotalEnergy,
	})
}

// cuesArg reads cues as an id to energy object or as a list of ids.
func cuesArg(args map[string]any, energy float64) []activation.Cue {
	var cues []activation.Cue

	if weighted, ok := args["cues"].(map[string]any); ok {
		for id := range weighted {
			cues = append(cues, activation.Cue{NodeID: id, Energy: floatArg(weighted, id, energy)})
		}

		slices.SortFunc(cues, func(a, b activation.Cue) int {
			return strings.Compare(a.NodeID, b.NodeID)
		})

		return cues
	}

	for _, id := range stringsArg(args, "cues") {
		cues = append(cues, activation.Cue{NodeID: id, Energy: energy})
	}

	return cues
}

func (toolset *Toolset) handleReward(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	pipeline, err := toolset.pipeline(ctx, args)

	if err != nil {
		return errorResult("memory_reward", err), nil
	}

	path := stringsArg(args, "path")

	if len(path) == 0 {
		return errorResult("memory_reward", fmt.Errorf("path parameter is required")), nil
	}

	engine := pipeline.Engine()
	engine.RewardActivationPath(path, floatArg(args, "reward", 0))

	energies := make(map[string]float64, len(path))

	for _, id := range path {
		energies[id] = engine.Energy(id)
	}

	return jsonResult(map[string]any{"energies": energies})
}

func (toolset *Toolset) handleFeedback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	pipeline, err := toolset.pipeline(ctx, args)

	if err != nil {
		return errorResult("memory_feedback", err), nil
	}

	chunkID := stringArg(args, "chunk_id")

	if chunkID == "" {
		return errorResult("memory_feedback", fmt.Errorf("chunk_id parameter is required")), nil
	}

	score, err := pipeline.Feedback(ctx, chunkID, stringArg(args, "feedback"), floatArg(args, "value", 1.0))

	if err != nil {
		return errorResult("memory_feedback", err), nil
	}

	return jsonResult(map[string]any{"id": chunkID, "significance": score})
}

func (toolset *Toolset) handlePrefetchStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipeline, err := toolset.pipeline(ctx, arguments(req))

	if err != nil {
		return errorResult("memory_prefetch_stats", err), nil
	}

	engine := pipeline.Engine()

	return jsonResult(map[string]any{
		"prefetch":       engine.PrefetchStats(),
		"summary":        engine.Summary(),
		"cache_capacity": engine.Cache().Capacity(),
	})
}

func (toolset *Toolset) handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipeline, err := toolset.pipeline(ctx, arguments(req))

	if err != nil {
		return errorResult("memory_stats", err), nil
	}

	return jsonResult(map[string]any{
		"memory":      pipeline.Manager().Stats(ctx),
		"session":     pipeline.Stats(),
		"environment": pipeline.Environment(),
	})
}

func (toolset *Toolset) handleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)

	if confirm, _ := args["confirm"].(bool); !confirm {
		return errorResult("memory_reset", fmt.Errorf("confirm must be true")), nil
	}

	pipeline, err := toolset.pipeline(ctx, args)

	if err != nil {
		return errorResult("memory_reset", err), nil
	}

	if err := pipeline.Manager().Reset(ctx); err != nil {
		return errorResult("memory_reset", err), nil
	}

	return jsonResult(pipeline.Manager().Stats(ctx))
}
