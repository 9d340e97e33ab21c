/*
Package activation spreads energy from cue nodes across a user's semantic and
procedural graphs to decide which memories are active for the current turn.
*/
package activation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/metrics"
)

// Memory is the part of memory.Manager the engine reads from.
type Memory interface {
	Node(ctx context.Context, id string) (*memory.Node, error)
	SemanticNode(ctx context.Context, id string) (*memory.Node, error)
	ProceduralNode(ctx context.Context, id string) (*memory.Node, error)
	AllWeightedNeighbors(ctx context.Context, id string) ([]memory.Neighbor, error)
	SearchEpisodic(ctx context.Context, query []float32, k int) ([]memory.ScoredChunk, error)
}

// Cue seeds spreading activation at a node with an initial energy.
type Cue struct {
	NodeID string  `json:"node_id"`
	Energy float64 `json:"energy"`
}

// Result is the outcome of one spreading activation.
type Result struct {
	Nodes       []memory.ActivatedNode `json:"nodes"`
	Episodes    []memory.ScoredChunk   `json:"episodes,omitempty"`
	Expanded    []string               `json:"expanded"`
	TotalEnergy float64                `json:"total_energy"`
	Elapsed     time.Duration          `json:"elapsed"`
	State       *State                 `json:"-"`
}

// IDs returns the ids of the activated nodes in rank order.
func (result *Result) IDs() []string {
	out := make([]string, 0, len(result.Nodes))

	for _, n := range result.Nodes {
		out = append(out, n.Node.ID)
	}

	return out
}

/*
Engine runs spreading activation, path reward and cognitive priming for one
memory manager. Each SpreadingActivation call works on its own State; the
engine only keeps a copy of the most recent one, behind a mutex, for reward
and summary calls.
*/
type Engine struct {
	memory   Memory
	cfg      config.Activation
	profiles map[memory.TaskType]Profile
	cache    *PrefetchCache
	metrics  *metrics.ActivationMetrics

	mu         sync.Mutex
	last       *State
	prefetched map[string]struct{}
	turn       TurnStats
	totals     PrefetchStats

	background sync.WaitGroup
}

type Option func(*Engine)

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.ActivationMetrics) Option {
	return func(engine *Engine) {
		engine.metrics = m
	}
}

func New(mem Memory, cfg config.Activation, opts ...Option) *Engine {
	engine := &Engine{
		memory:     mem,
		cfg:        cfg,
		profiles:   buildProfiles(cfg.Attention),
		cache:      NewPrefetchCache(cfg.CacheSize),
		last:       NewState(),
		prefetched: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(engine)
	}

	if engine.metrics == nil {
		engine.metrics = metrics.NewActivationMetrics()
	}

	return engine
}

func (engine *Engine) Metrics() *metrics.ActivationMetrics {
	return engine.metrics
}

func (engine *Engine) Cache() *PrefetchCache {
	return engine.cache
}

// Profile returns the attention profile used for task.
func (engine *Engine) Profile(task memory.TaskType) Profile {
	if profile, ok := engine.profiles[task]; ok {
		return profile
	}

	return Profile{DefaultLabel: 1.0}
}

type queued struct {
	id    string
	depth int
}

/*
SpreadingActivation propagates energy breadth-first from cues. A node is
expanded at most once and only while its depth is below maxDepth and its
energy reaches the activation threshold. Each neighbor, from either graph,
receives energy*decay*weight*attention on top of what it already holds.
Traversal is undirected, but nodes that were already expanded receive nothing,
so energy never echoes back along the edge it arrived on.
Expanded nodes above the cross-modal trigger pull related episodic chunks into
the result without feeding energy back. Missing nodes and failing lookups
contribute nothing.
*/
func (engine *Engine) SpreadingActivation(
	ctx context.Context, cues []Cue, task memory.TaskType, maxDepth int,
) (*Result, error) {
	start := time.Now()

	if maxDepth <= 0 {
		maxDepth = engine.cfg.MaxDepth
	}

	log.Debug("spreading activation", "cues", len(cues), "task", task, "depth", maxDepth)

	profile := engine.Profile(task)
	state := NewState()
	queue := make([]queued, 0, len(cues))

	for _, cue := range cues {
		state.Set(cue.NodeID, cue.Energy)
		queue = append(queue, queued{id: cue.NodeID})
	}

	known := make(map[string]*memory.Node)
	visited := make(map[string]bool)
	seenChunks := make(map[string]bool)
	result := &Result{State: state}
	crossModal := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth || visited[current.id] {
			continue
		}

		visited[current.id] = true
		result.Expanded = append(result.Expanded, current.id)

		energy, _ := state.Energy(current.id)

		if energy < engine.cfg.ActivationThreshold {
			continue
		}

		neighbors, err := engine.memory.AllWeightedNeighbors(ctx, current.id)

		if err != nil {
			log.Warn("neighbor lookup failed", "node", current.id, "error", err)
		}

		for _, neighbor := range neighbors {
			id := neighbor.Node.ID
			known[id] = neighbor.Node

			if visited[id] {
				continue
			}

			received := energy * engine.cfg.DecayFactor * neighbor.Weight * profile.Weight(neighbor.Node.Label)
			state.Add(id, received)
			queue = append(queue, queued{id: id, depth: current.depth + 1})
		}

		if energy > engine.cfg.CrossModalTrigger {
			episodes := engine.crossModal(ctx, engine.resolve(ctx, current.id, known))

			if episodes != nil {
				crossModal++
			}

			for _, episode := range episodes {
				if seenChunks[episode.Chunk.ID] {
					continue
				}

				seenChunks[episode.Chunk.ID] = true
				result.Episodes = append(result.Episodes, episode)
			}
		}
	}

	for _, id := range state.IDs() {
		energy, _ := state.Energy(id)

		if energy <= engine.cfg.ActivationThreshold {
			continue
		}

		node := engine.resolve(ctx, id, known)

		if node == nil {
			continue
		}

		result.Nodes = append(result.Nodes, memory.ActivatedNode{Node: node, Energy: energy})
	}

	sort.SliceStable(result.Nodes, func(i, j int) bool {
		return result.Nodes[i].Energy > result.Nodes[j].Energy
	})

	result.TotalEnergy = state.Total()
	result.Elapsed = time.Since(start)

	engine.mu.Lock()
	engine.last = state.Clone()
	engine.mu.Unlock()

	engine.metrics.RecordActivation(len(result.Expanded), len(result.Nodes), crossModal, result.Elapsed)

	log.Debug(
		"spreading activation done",
		"activated", len(result.Nodes),
		"expanded", len(result.Expanded),
		"episodes", len(result.Episodes),
		"elapsed", result.Elapsed,
	)

	return result, nil
}

/*
crossModal searches episodic memory near node's embedding. It returns nil
when the node cannot trigger a search at all.
*/
func (engine *Engine) crossModal(ctx context.Context, node *memory.Node) []memory.ScoredChunk {
	if node == nil || len(node.Embedding) == 0 || engine.cfg.CrossModalResults <= 0 {
		return nil
	}

	episodes, err := engine.memory.SearchEpisodic(ctx, node.Embedding, engine.cfg.CrossModalResults)

	if err != nil {
		log.Warn("cross-modal search failed", "node", node.ID, "error", err)
		return nil
	}

	log.Debug("cross-modal activation", "node", node.ID, "episodes", len(episodes))

	if episodes == nil {
		episodes = []memory.ScoredChunk{}
	}

	return episodes
}

// resolve finds a node seen during propagation, in the prefetch cache, or in
// either graph.
func (engine *Engine) resolve(ctx context.Context, id string, known map[string]*memory.Node) *memory.Node {
	if node, ok := known[id]; ok {
		return node
	}

	if node, ok := engine.CachedNode(id); ok {
		known[id] = node
		return node
	}

	node, err := engine.memory.Node(ctx, id)

	if err != nil {
		return nil
	}

	known[id] = node

	return node
}

/*
RewardActivationPath boosts the nodes of a successful path in the most recent
activation state. Stored edge weights are untouched and the boost disappears
with the next SpreadingActivation.
*/
func (engine *Engine) RewardActivationPath(path []string, reward float64) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	engine.last.Reward(path, reward)

	log.Debug("rewarded activation path", "nodes", len(path), "reward", reward)
}

// Energy returns a node's energy in the most recent activation state.
func (engine *Engine) Energy(id string) float64 {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	energy, _ := engine.last.Energy(id)

	return energy
}

type Summary struct {
	ActiveNodes     int     `json:"active_nodes_count"`
	TotalEnergy     float64 `json:"total_activation_energy"`
	AverageEnergy   float64 `json:"avg_activation_energy"`
	CacheSize       int     `json:"cache_size"`
	PrefetchHitRate float64 `json:"prefetch_hit_rate"`
}

func (engine *Engine) Summary() Summary {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	summary := Summary{
		ActiveNodes:     engine.last.Len(),
		TotalEnergy:     engine.last.Total(),
		CacheSize:       engine.cache.Len(),
		PrefetchHitRate: float64(engine.totals.Useful) / float64(max(engine.totals.Total, 1)),
	}

	if summary.ActiveNodes > 0 {
		summary.AverageEnergy = summary.TotalEnergy / float64(summary.ActiveNodes)
	}

	return summary
}
