package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
)

/*
Manager owns one episodic VectorStore and two GraphStores (semantic and
procedural) for a single user. Every call is scoped to that user; nothing
stored for another identity is ever visible through it.
*/
type Manager struct {
	UserID     string
	cfg        config.Config
	embedder   Embedder
	episodic   VectorStore
	semantic   GraphStore
	procedural GraphStore
}

type ManagerOption func(*Manager)

// WithEmbedder replaces the deterministic fallback embedder.
func WithEmbedder(embedder Embedder) ManagerOption {
	return func(manager *Manager) {
		manager.embedder = embedder
	}
}

/*
NewManager validates cfg and builds the stores for userID. An invalid
configuration is the only error returned here; unreachable backends degrade
to memory.
*/
func NewManager(
	ctx context.Context, cfg config.Config, userID string, opts ...ManagerOption,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", errors.ErrInvalidConfig)
	}

	manager := &Manager{UserID: userID, cfg: cfg}

	for _, opt := range opts {
		opt(manager)
	}

	if manager.embedder == nil {
		embedder, err := NewDeterministicEmbedder(cfg.Database.VectorDim)

		if err != nil {
			return nil, err
		}

		manager.embedder = embedder
	}

	store, err := NewVectorStore(ctx, cfg.Database, userID+"_episodic", manager.embedder)

	if err != nil {
		return nil, err
	}

	manager.episodic = store
	manager.semantic = NewGraphStore(ctx, cfg.Database, userID+"_semantic")
	manager.procedural = NewGraphStore(ctx, cfg.Database, userID+"_procedural")

	log.Debug("memory manager ready", "user", userID)

	return manager, nil
}

func (manager *Manager) Embedder() Embedder {
	return manager.embedder
}

func (manager *Manager) Episodic() VectorStore {
	return manager.episodic
}

func (manager *Manager) Semantic() GraphStore {
	return manager.semantic
}

func (manager *Manager) Procedural() GraphStore {
	return manager.procedural
}

// GraphFor returns the graph a task type writes to.
func (manager *Manager) GraphFor(task TaskType) GraphStore {
	if task.Procedural() {
		return manager.procedural
	}

	return manager.semantic
}

// AddEpisodic stores chunk for this user. A chunk owned by anyone else is
// rejected with ErrForeignUser.
func (manager *Manager) AddEpisodic(ctx context.Context, chunk *MemoryChunk) (string, error) {
	if chunk.UserID == "" {
		chunk.UserID = manager.UserID
	}

	if chunk.UserID != manager.UserID {
		return "", fmt.Errorf("chunk for %q: %w", chunk.UserID, errors.ErrForeignUser)
	}

	return manager.episodic.Add(ctx, chunk)
}

func (manager *Manager) SearchEpisodic(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	results, err := manager.episodic.Search(ctx, query, k)

	if err != nil {
		return nil, err
	}

	out := results[:0]

	for _, r := range results {
		if r.Chunk.UserID == "" || r.Chunk.UserID == manager.UserID {
			out = append(out, r)
		}
	}

	return out, nil
}

func (manager *Manager) SearchEpisodicText(ctx context.Context, text string, k int) ([]ScoredChunk, error) {
	query, err := manager.embedder.Embed(ctx, text)

	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return manager.SearchEpisodic(ctx, query, k)
}

func (manager *Manager) Chunk(ctx context.Context, id string) (*MemoryChunk, error) {
	chunk, err := manager.episodic.Get(ctx, id)

	if err != nil {
		return nil, err
	}

	if chunk.UserID != "" && chunk.UserID != manager.UserID {
		return nil, fmt.Errorf("chunk %s: %w", id, errors.ErrNotFound)
	}

	return chunk, nil
}

// UpdateSignificance persists a revised score, clamped into [0,1].
func (manager *Manager) UpdateSignificance(ctx context.Context, id string, score float64) error {
	if _, err := manager.Chunk(ctx, id); err != nil {
		return err
	}

	return manager.episodic.UpdateScore(ctx, id, math.Max(0, math.Min(1, score)))
}

func (manager *Manager) AddSemanticNode(ctx context.Context, node *Node) error {
	return manager.semantic.AddNode(ctx, node)
}

func (manager *Manager) AddSemanticRelationship(ctx context.Context, rel *Relationship) error {
	return manager.semantic.AddRelationship(ctx, rel)
}

func (manager *Manager) AddProceduralNode(ctx context.Context, node *Node) error {
	return manager.procedural.AddNode(ctx, node)
}

func (manager *Manager) AddProceduralRelationship(ctx context.Context, rel *Relationship) error {
	return manager.procedural.AddRelationship(ctx, rel)
}

func (manager *Manager) SemanticNode(ctx context.Context, id string) (*Node, error) {
	return manager.semantic.GetNode(ctx, id)
}

func (manager *Manager) ProceduralNode(ctx context.Context, id string) (*Node, error) {
	return manager.procedural.GetNode(ctx, id)
}

// Node looks id up in the semantic graph first, then the procedural one.
func (manager *Manager) Node(ctx context.Context, id string) (*Node, error) {
	node, err := manager.semantic.GetNode(ctx, id)

	if err == nil {
		return node, nil
	}

	return manager.procedural.GetNode(ctx, id)
}

func (manager *Manager) SemanticWeightedNeighbors(ctx context.Context, id string) ([]Neighbor, error) {
	return manager.semantic.WeightedNeighbors(ctx, id)
}

func (manager *Manager) ProceduralWeightedNeighbors(ctx context.Context, id string) ([]Neighbor, error) {
	return manager.procedural.WeightedNeighbors(ctx, id)
}

/*
AllWeightedNeighbors combines the neighbors of id in both graphs, semantic
first. A failing graph does not hide the other one's neighbors; the error is
returned alongside whatever was found.
*/
func (manager *Manager) AllWeightedNeighbors(ctx context.Context, id string) ([]Neighbor, error) {
	semantic, semErr := manager.semantic.WeightedNeighbors(ctx, id)
	procedural, procErr := manager.procedural.WeightedNeighbors(ctx, id)

	return append(semantic, procedural...), errors.NewError(semErr, procErr)
}

/*
StoreExtraction routes an extractor's output into the graph that matches the
task type: procedural for technical work, semantic otherwise. Nodes without
an embedding are embedded from their name so cross-modal activation can reach
them.
*/
func (manager *Manager) StoreExtraction(ctx context.Context, task TaskType, extraction *Extraction) error {
	if extraction == nil {
		return nil
	}

	graph := manager.GraphFor(task)

	for _, node := range extraction.Nodes {
		if len(node.Embedding) == 0 {
			embedding, err := manager.embedder.Embed(ctx, node.Name())

			if err != nil {
				log.Warn("failed to embed node", "node", node.ID, "error", err)
			} else {
				node.Embedding = embedding
			}
		}

		if err := graph.AddNode(ctx, node); err != nil {
			return fmt.Errorf("store node %s: %w", node.ID, err)
		}
	}

	for _, rel := range extraction.Relationships {
		if err := graph.AddRelationship(ctx, rel); err != nil {
			return fmt.Errorf("store relationship %s-%s: %w", rel.SourceID, rel.TargetID, err)
		}
	}

	return nil
}

// Reset wipes every store this manager owns.
func (manager *Manager) Reset(ctx context.Context) error {
	return errors.NewError(
		manager.episodic.Reset(ctx),
		manager.semantic.Reset(ctx),
		manager.procedural.Reset(ctx),
	)
}

type ManagerStats struct {
	UserID          string `json:"user_id"`
	EpisodicChunks  int    `json:"episodic_chunks"`
	SemanticNodes   int    `json:"semantic_nodes"`
	ProceduralNodes int    `json:"procedural_nodes"`
	VectorBackend   string `json:"vector_backend"`
	GraphBackend    string `json:"graph_backend"`
}

func (manager *Manager) Stats(ctx context.Context) ManagerStats {
	return ManagerStats{
		UserID:          manager.UserID,
		EpisodicChunks:  manager.episodic.Len(ctx),
		SemanticNodes:   manager.semantic.NodeCount(ctx),
		ProceduralNodes: manager.procedural.NodeCount(ctx),
		VectorBackend:   backendName(manager.episodic),
		GraphBackend:    backendName(manager.semantic),
	}
}

// Close releases any remote connections held by the stores.
func (manager *Manager) Close(ctx context.Context) error {
	var errs []any

	for _, store := range []any{manager.episodic, manager.semantic, manager.procedural} {
		if closer, ok := store.(interface{ Close(context.Context) error }); ok {
			errs = append(errs, closer.Close(ctx))
		}
	}

	return errors.NewError(errs...)
}

func backendName(store any) string {
	switch store.(type) {
	case *InMemoryVectorStore, *InMemoryGraphStore:
		return config.BackendMemory
	case *QdrantVectorStore:
		return config.BackendQdrant
	case *Neo4jGraphStore:
		return config.BackendNeo4j
	default:
		return fmt.Sprintf("%T", store)
	}
}

/*
Registry hands out one Manager per user id, creating them on first use.
Managers are built outside the lock, so a slow backend for one user never
stalls lookups for another. Concurrent first calls for the same user share
one build.
*/
type Registry struct {
	mu       sync.Mutex
	cfg      config.Config
	opts     []ManagerOption
	managers map[string]*Manager
	building singleflight.Group
}

func NewRegistry(cfg config.Config, opts ...ManagerOption) *Registry {
	return &Registry{
		cfg:      cfg,
		opts:     opts,
		managers: make(map[string]*Manager),
	}
}

func (registry *Registry) Get(ctx context.Context, userID string) (*Manager, error) {
	if manager, ok := registry.lookup(userID); ok {
		return manager, nil
	}

	built, err, _ := registry.building.Do(userID, func() (any, error) {
		if manager, ok := registry.lookup(userID); ok {
			return manager, nil
		}

		manager, err := NewManager(ctx, registry.cfg, userID, registry.opts...)

		if err != nil {
			return nil, err
		}

		registry.mu.Lock()
		registry.managers[userID] = manager
		registry.mu.Unlock()

		return manager, nil
	})

	if err != nil {
		return nil, err
	}

	return built.(*Manager), nil
}

func (registry *Registry) lookup(userID string) (*Manager, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	manager, ok := registry.managers[userID]

	return manager, ok
}

// Users lists every user that has a manager.
func (registry *Registry) Users() []string {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	out := make([]string, 0, len(registry.managers))

	for id := range registry.managers {
		out = append(out, id)
	}

	slices.Sort(out)

	return out
}

func (registry *Registry) Close(ctx context.Context) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	var errs []any

	for id, manager := range registry.managers {
		errs = append(errs, manager.Close(ctx))
		delete(registry.managers, id)
	}

	return errors.NewError(errs...)
}
