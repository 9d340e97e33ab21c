/*
Package retrieval runs a conversational turn against a user's memory: it
classifies and stores the utterance, activates related memories, ranks them
into a bounded context and hands that context to a generator.
*/
package retrieval

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/activation"
	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
	"github.com/theapemachine/recall/pkg/scoring"
)

// Generator produces the answer text for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (provider.Completion, error)
}

const (
	SourceNode     = "activated_node"
	SourceEpisodic = "episodic_memory"
)

// defaultCueEnergy seeds activation when the extractor yields no cues.
const defaultCueEnergy = 0.7

// Recollection is one recalled memory as it is offered to generation.
type Recollection struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Source       string    `json:"source"`
	Significance float64   `json:"significance_score"`
	Relevance    float64   `json:"relevance"`
	Score        float64   `json:"score"`
	Energy       float64   `json:"activation_energy,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitzero"`
}

// Recall is the ranked, budgeted memory context for one query.
type Recall struct {
	Task       memory.TaskType    `json:"task_type"`
	Cues       []activation.Cue   `json:"cues"`
	Items      []Recollection     `json:"items"`
	Activation *activation.Result `json:"activation"`
}

// IDs lists the ids of the recalled items in rank order.
func (recall *Recall) IDs() []string {
	out := make([]string, 0, len(recall.Items))

	for _, item := range recall.Items {
		out = append(out, item.ID)
	}

	return out
}

// TurnMetrics describes the cost and memory use of one Respond call.
type TurnMetrics struct {
	Latency         time.Duration        `json:"latency"`
	Usage           provider.Usage       `json:"token_usage"`
	MemoryHits      int                  `json:"memory_hits"`
	ActivationNodes int                  `json:"activation_nodes"`
	PrefetchHits    int                  `json:"prefetch_hits"`
	Prefetch        activation.TurnStats `json:"prefetch"`
}

// Response is the answer to one turn plus what went into it.
type Response struct {
	Answer  string              `json:"answer"`
	Task    memory.TaskType     `json:"task_type"`
	Chunk   *memory.MemoryChunk `json:"chunk"`
	Recall  *Recall             `json:"recall"`
	Metrics TurnMetrics         `json:"metrics"`
}

// SessionStats accumulates over the lifetime of a Pipeline.
type SessionStats struct {
	TotalQueries      int           `json:"total_queries"`
	MemoriesCreated   int           `json:"total_memories_created"`
	MemoriesRetrieved int           `json:"total_memories_retrieved"`
	ActivationEvents  int           `json:"activation_events"`
	AvgResponseTime   time.Duration `json:"avg_response_time"`
}

/*
Pipeline drives ingestion, recall and response for one user's memory. It is
safe for concurrent use.
*/
type Pipeline struct {
	manager    *memory.Manager
	engine     *activation.Engine
	calculator *scoring.Calculator
	classifier Classifier
	extractor  Extractor
	generator  Generator
	cfg        config.Retrieval

	mu    sync.Mutex
	stats SessionStats
	env   Environment
}

type Option func(*Pipeline)

func WithClassifier(classifier Classifier) Option {
	return func(pipeline *Pipeline) {
		pipeline.classifier = classifier
	}
}

func WithExtractor(extractor Extractor) Option {
	return func(pipeline *Pipeline) {
		pipeline.extractor = extractor
	}
}

// WithGenerator sets the answer generator. A nil generator makes Respond
// answer from recalled memory alone.
func WithGenerator(generator Generator) Option {
	return func(pipeline *Pipeline) {
		pipeline.generator = generator
	}
}

func WithCalculator(calculator *scoring.Calculator) Option {
	return func(pipeline *Pipeline) {
		pipeline.calculator = calculator
	}
}

func NewPipeline(
	manager *memory.Manager, engine *activation.Engine, cfg config.Retrieval, opts ...Option,
) *Pipeline {
	pipeline := &Pipeline{
		manager:    manager,
		engine:     engine,
		calculator: scoring.NewCalculator(),
		classifier: NewKeywordClassifier(),
		extractor:  NewKeywordExtractor(),
		cfg:        cfg,
	}

	for _, opt := range opts {
		opt(pipeline)
	}

	return pipeline
}

func (pipeline *Pipeline) Manager() *memory.Manager {
	return pipeline.manager
}

func (pipeline *Pipeline) Engine() *activation.Engine {
	return pipeline.engine
}

/*
Ingest stores text as a new episodic memory and routes what the extractor
finds into the graph for its task type. A valid "task_type" in metadata skips
classification.
*/
func (pipeline *Pipeline) Ingest(
	ctx context.Context, text string, metadata map[string]any,
) (*memory.MemoryChunk, *memory.Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, errors.ErrEmptyContent
	}

	metadata = maps.Clone(metadata)

	if metadata == nil {
		metadata = map[string]any{}
	}

	task := pipeline.taskFor(ctx, text, metadata)
	metadata["task_type"] = string(task)

	chunk := memory.NewMemoryChunk(text, pipeline.manager.UserID, task, metadata)
	chunk.SignificanceScore = pipeline.calculator.InitialScore(chunk)

	if _, err := pipeline.manager.AddEpisodic(ctx, chunk); err != nil {
		return nil, nil, fmt.Errorf("store episodic memory: %w", err)
	}

	extraction, err := pipeline.extractor.Extract(ctx, text, task)

	if err != nil {
		log.Warn("extraction failed", "chunk", chunk.ID, "error", err)
		extraction = &memory.Extraction{}
	}

	if err := pipeline.manager.StoreExtraction(ctx, task, extraction); err != nil {
		return chunk, extraction, fmt.Errorf("store extraction: %w", err)
	}

	pipeline.mu.Lock()
	pipeline.stats.MemoriesCreated++
	pipeline.env.observe(text)
	pipeline.mu.Unlock()

	log.Info(
		"memory ingested",
		"user", pipeline.manager.UserID,
		"chunk", chunk.ID,
		"task", task,
		"significance", chunk.SignificanceScore,
		"nodes", len(extraction.Nodes),
		"relationships", len(extraction.Relationships),
	)

	return chunk, extraction, nil
}

func (pipeline *Pipeline) taskFor(ctx context.Context, text string, metadata map[string]any) memory.TaskType {
	if name, ok := metadata["task_type"].(string); ok {
		for _, task := range memory.TaskTypes {
			if string(task) == name {
				return task
			}
		}
	}

	return pipeline.classifier.Classify(ctx, text)
}

// Classify returns the task type the pipeline would assign to text.
func (pipeline *Pipeline) Classify(ctx context.Context, text string) memory.TaskType {
	return pipeline.classifier.Classify(ctx, text)
}

/*
Recall activates the graph from the query's cues, adds the closest episodic
memories and any chunks pulled in cross-modally, and returns them ranked by
0.6 relevance plus 0.4 significance, trimmed to the context budget.
*/
func (pipeline *Pipeline) Recall(ctx context.Context, query string, task memory.TaskType) (*Recall, error) {
	cues := pipeline.Cues(ctx, query, task)
	result, err := pipeline.engine.SpreadingActivation(ctx, cues, task, 0)

	if err != nil {
		return nil, fmt.Errorf("spreading activation: %w", err)
	}

	items := make([]Recollection, 0, len(result.Nodes)+pipeline.cfg.EpisodicResults)
	chunks := make([]*memory.MemoryChunk, 0, cap(items))

	for _, activated := range result.Nodes {
		content := fmt.Sprintf("activated node: %s (%s)", activated.Node.Name(), activated.Node.Label)
		significance := min(activated.Energy, 1)

		items = append(items, Recollection{
			ID:           activated.Node.ID,
			Content:      content,
			Source:       SourceNode,
			Significance: significance,
			Energy:       activated.Energy,
		})

		chunks = append(chunks, &memory.MemoryChunk{
			ID: activated.Node.ID, Content: content, TaskType: task, SignificanceScore: significance,
		})
	}

	episodes, err := pipeline.manager.SearchEpisodicText(ctx, query, pipeline.cfg.EpisodicResults)

	if err != nil {
		log.Warn("episodic search failed", "user", pipeline.manager.UserID, "error", err)
	}

	seen := make(map[string]bool)

	for _, episode := range append(episodes, result.Episodes...) {
		if seen[episode.Chunk.ID] {
			continue
		}

		seen[episode.Chunk.ID] = true

		items = append(items, Recollection{
			ID:           episode.Chunk.ID,
			Content:      episode.Chunk.Content,
			Source:       SourceEpisodic,
			Significance: episode.Chunk.SignificanceScore,
			Timestamp:    episode.Chunk.Timestamp,
		})

		chunks = append(chunks, episode.Chunk)
	}

	index := make(map[*memory.MemoryChunk]int, len(chunks))

	for i, chunk := range chunks {
		index[chunk] = i
	}

	ranked := make([]Recollection, 0, len(items))

	for _, r := range pipeline.calculator.Rank(chunks, query, task) {
		item := items[index[r.Chunk]]
		item.Relevance = r.Relevance
		item.Score = r.Score
		ranked = append(ranked, item)
	}

	pipeline.mu.Lock()
	pipeline.stats.MemoriesRetrieved += len(ranked)
	pipeline.stats.ActivationEvents++
	pipeline.mu.Unlock()

	if limit := pipeline.cfg.ContextBudgetItems; limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	for i := range ranked {
		ranked[i].Content = truncate(ranked[i].Content, pipeline.cfg.ContextBudgetChars)
	}

	log.Debug("recall done", "user", pipeline.manager.UserID, "cues", len(cues), "nodes", len(result.Nodes), "items", len(ranked))

	return &Recall{Task: task, Cues: cues, Items: ranked, Activation: result}, nil
}

/*
Cues are the extractor's entities for query, each at its confidence. Without
any, the first three words of the query are used at 0.7.
*/
func (pipeline *Pipeline) Cues(ctx context.Context, query string, task memory.TaskType) []activation.Cue {
	var cues []activation.Cue

	if extraction, err := pipeline.extractor.Extract(ctx, query, task); err == nil {
		energies := make(map[string]float64, len(extraction.Nodes))

		for _, node := range extraction.Nodes {
			if confidence, ok := node.Properties["confidence"].(float64); ok {
				energies[node.ID] = confidence
			}
		}

		for _, id := range extraction.Cues {
			energy, ok := energies[id]

			if !ok {
				energy = defaultCueEnergy
			}

			cues = append(cues, activation.Cue{NodeID: id, Energy: energy})
		}
	}

	if len(cues) > 0 {
		return cues
	}

	words := strings.Fields(query)

	for _, word := range words[:min(3, len(words))] {
		cues = append(cues, activation.Cue{NodeID: word, Energy: defaultCueEnergy})
	}

	return cues
}

/*
Respond runs a full turn: ingest the query, recall memory for it, generate an
answer from the recalled context and credit primed nodes the answer used.
*/
func (pipeline *Pipeline) Respond(ctx context.Context, query string, metadata map[string]any) (*Response, error) {
	start := time.Now()

	chunk, _, err := pipeline.Ingest(ctx, query, metadata)

	if err != nil {
		return nil, err
	}

	recall, err := pipeline.Recall(ctx, query, chunk.TaskType)

	if err != nil {
		return nil, err
	}

	source, _ := metadata["source"].(string)
	codeOnly := chunk.TaskType == memory.TaskTechnicalCoding && strings.Contains(strings.ToLower(source), "humaneval")
	answer, usage := pipeline.answer(ctx, query, chunk.TaskType, recall, codeOnly)

	used := recall.IDs()
	hits := pipeline.engine.MarkUsefulPrefetch(used)
	nodes := 0

	for _, item := range recall.Items {
		if item.Source == SourceNode {
			nodes++
		}
	}

	metrics := TurnMetrics{
		Latency:         time.Since(start),
		Usage:           usage,
		MemoryHits:      len(used),
		ActivationNodes: nodes,
		PrefetchHits:    hits,
		Prefetch:        pipeline.engine.TurnStats(),
	}

	pipeline.mu.Lock()
	pipeline.stats.TotalQueries++
	n := time.Duration(pipeline.stats.TotalQueries)
	pipeline.stats.AvgResponseTime = (pipeline.stats.AvgResponseTime*(n-1) + metrics.Latency) / n
	pipeline.mu.Unlock()

	log.Info(
		"turn done",
		"user", pipeline.manager.UserID,
		"task", chunk.TaskType,
		"memory_hits", metrics.MemoryHits,
		"prefetch_hits", hits,
		"latency", metrics.Latency,
	)

	return &Response{
		Answer:  answer,
		Task:    chunk.TaskType,
		Chunk:   chunk,
		Recall:  recall,
		Metrics: metrics,
	}, nil
}

func (pipeline *Pipeline) answer(
	ctx context.Context, query string, task memory.TaskType, recall *Recall, codeOnly bool,
) (string, provider.Usage) {
	memoryContext := MemoryContext(recall.Items)

	if pipeline.generator == nil {
		if len(recall.Items) == 0 {
			return "I have no memories related to this yet.", provider.Usage{}
		}

		return "Here is what I remember:\n" + memoryContext, provider.Usage{}
	}

	system, prompt := StrategyPrompt(task), conversationalPrompt(query, memoryContext)

	if codeOnly {
		system, prompt = "", codePrompt(query, memoryContext)
	}

	completion, err := pipeline.generator.Generate(ctx, system, prompt)

	if err != nil {
		log.Warn("generation failed, retrying without memory", "error", err)

		completion, err = pipeline.generator.Generate(
			ctx, "", fmt.Sprintf("User question: %s\n\nPlease provide a brief answer:", query),
		)

		if err != nil {
			log.Error("generation failed", "error", err)
			return "Sorry, I cannot answer right now. Please try again later.", provider.Usage{}
		}
	}

	if codeOnly {
		return cleanCode(completion.Text), completion.Usage
	}

	return strings.TrimSpace(completion.Text), completion.Usage
}

/*
Feedback moves a chunk's significance by the named feedback type and stores
the new score, which it returns.
*/
func (pipeline *Pipeline) Feedback(ctx context.Context, chunkID, feedback string, value float64) (float64, error) {
	kind, ok := scoring.ParseFeedback(feedback)

	if !ok {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidFeedback, feedback)
	}

	chunk, err := pipeline.manager.Chunk(ctx, chunkID)

	if err != nil {
		return 0, err
	}

	score := pipeline.calculator.ApplyFeedback(chunk, kind, value)

	if err := pipeline.manager.UpdateSignificance(ctx, chunkID, score); err != nil {
		return 0, err
	}

	log.Info("feedback applied", "chunk", chunkID, "feedback", kind, "from", chunk.SignificanceScore, "to", score)

	return score, nil
}

func (pipeline *Pipeline) Stats() SessionStats {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()

	return pipeline.stats
}

// Environment returns what the user's messages revealed about their setup.
func (pipeline *Pipeline) Environment() Environment {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()

	return Environment{OS: pipeline.env.OS, TechStack: append([]string(nil), pipeline.env.TechStack...)}
}

// Environment is the user's operating system and tech stack as mentioned.
type Environment struct {
	OS        string   `json:"os,omitempty"`
	TechStack []string `json:"tech_stack,omitempty"`
}

var osKeywords = []struct {
	os       string
	keywords []string
}{
	{"windows", []string{"windows", "win10", "win11", "powershell"}},
	{"linux", []string{"linux", "ubuntu", "debian"}},
	{"macos", []string{"macos", "mac", "osx"}},
}

var stackKeywords = map[string][]string{
	"python":     {"python"},
	"javascript": {"javascript", "js"},
	"docker":     {"docker"},
}

func (env *Environment) observe(text string) {
	lower := strings.ToLower(text)
	words := tokenSet(lower)

	for _, candidate := range osKeywords {
		if anyKeyword(lower, words, candidate.keywords) {
			env.OS = candidate.os
			break
		}
	}

	for tech, keywords := range stackKeywords {
		if anyKeyword(lower, words, keywords) && !slices.Contains(env.TechStack, tech) {
			env.TechStack = append(env.TechStack, tech)
		}
	}

	slices.Sort(env.TechStack)
}
