package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/stores/neo4j"
)

/*
NewGraphStore returns the backend selected by cfg for the graph instance
called name. A graph database that cannot be reached is logged and replaced by
the in-memory store.
*/
func NewGraphStore(ctx context.Context, cfg config.Database, name string) GraphStore {
	if cfg.GraphBackend != config.BackendNeo4j {
		return NewInMemoryGraphStore()
	}

	var client *neo4j.Client

	err := errors.Retry(ctx, ConnectRetry, func() (err error) {
		client, err = neo4j.New(
			ctx, cfg.GraphURI, cfg.GraphUser, cfg.GraphPassword, cfg.GraphDatabase, cfg.ConnectTimeout,
		)
		return err
	})

	if err != nil {
		log.Warn(
			"graph backend unavailable, using in-memory store",
			"graph", name,
			"uri", cfg.GraphURI,
			"error", err,
		)

		return NewInMemoryGraphStore()
	}

	log.Debug("graph backend ready", "graph", name, "uri", cfg.GraphURI)

	return NewNeo4jGraphStore(client, name)
}

/*
InMemoryGraphStore keeps nodes and edges in id-keyed arenas. Every edge is
indexed under both endpoints so traversal can ignore direction.
*/
type InMemoryGraphStore struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	order     []string
	edges     map[EdgeKey]*Relationship
	adjacency map[string][]EdgeKey
}

func NewInMemoryGraphStore() *InMemoryGraphStore {
	return &InMemoryGraphStore{
		nodes:     make(map[string]*Node),
		edges:     make(map[EdgeKey]*Relationship),
		adjacency: make(map[string][]EdgeKey),
	}
}

func (store *InMemoryGraphStore) AddNode(_ context.Context, node *Node) error {
	if node == nil || node.ID == "" {
		return fmt.Errorf("%w: node id is required", errors.ErrInvalidConfig)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if existing, ok := store.nodes[node.ID]; ok {
		existing.merge(node)
		return nil
	}

	store.nodes[node.ID] = node.Clone()
	store.order = append(store.order, node.ID)

	return nil
}

/*
AddRelationship upserts by triple. A repeated triple replaces the weight.
Endpoints need not exist yet; traversal skips them until they are added.
*/
func (store *InMemoryGraphStore) AddRelationship(_ context.Context, rel *Relationship) error {
	if rel == nil || rel.SourceID == "" || rel.TargetID == "" {
		return fmt.Errorf("%w: relationship endpoints are required", errors.ErrInvalidConfig)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	key := rel.Key()

	if existing, ok := store.edges[key]; ok {
		existing.Weight = rel.Weight

		if existing.Properties == nil {
			existing.Properties = map[string]any{}
		}

		for k, v := range rel.Properties {
			existing.Properties[k] = v
		}

		return nil
	}

	stored := *rel
	store.edges[key] = &stored
	store.adjacency[rel.SourceID] = append(store.adjacency[rel.SourceID], key)

	if rel.TargetID != rel.SourceID {
		store.adjacency[rel.TargetID] = append(store.adjacency[rel.TargetID], key)
	}

	return nil
}

func (store *InMemoryGraphStore) GetNode(_ context.Context, id string) (*Node, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	node, ok := store.nodes[id]

	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, errors.ErrNotFound)
	}

	return node.Clone(), nil
}

func (store *InMemoryGraphStore) Neighbors(ctx context.Context, id string) ([]*Node, error) {
	weighted, err := store.WeightedNeighbors(ctx, id)

	if err != nil {
		return nil, err
	}

	return neighborNodes(weighted), nil
}

/*
WeightedNeighbors lists the node on the other end of every edge touching id,
in edge insertion order. Edges whose other endpoint was never added as a node
are skipped.
*/
func (store *InMemoryGraphStore) WeightedNeighbors(_ context.Context, id string) ([]Neighbor, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	keys := store.adjacency[id]
	out := make([]Neighbor, 0, len(keys))

	for _, key := range keys {
		other := key.Target

		if other == id {
			other = key.Source
		}

		node, ok := store.nodes[other]

		if !ok {
			continue
		}

		out = append(out, Neighbor{Node: node.Clone(), Weight: store.edges[key].Weight})
	}

	return out, nil
}

func (store *InMemoryGraphStore) NodeCount(context.Context) int {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return len(store.nodes)
}

func (store *InMemoryGraphStore) Reset(context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.nodes = make(map[string]*Node)
	store.order = nil
	store.edges = make(map[EdgeKey]*Relationship)
	store.adjacency = make(map[string][]EdgeKey)

	return nil
}

// Nodes returns copies of every node in insertion order.
func (store *InMemoryGraphStore) Nodes() []*Node {
	store.mu.RLock()
	defer store.mu.RUnlock()

	out := make([]*Node, 0, len(store.order))

	for _, id := range store.order {
		out = append(out, store.nodes[id].Clone())
	}

	return out
}

// Relationships returns copies of every edge, grouped by source node order.
func (store *InMemoryGraphStore) Relationships() []*Relationship {
	store.mu.RLock()
	defer store.mu.RUnlock()

	seen := make(map[EdgeKey]bool, len(store.edges))
	out := make([]*Relationship, 0, len(store.edges))

	collect := func(keys []EdgeKey) {
		for _, key := range keys {
			if seen[key] {
				continue
			}

			seen[key] = true
			rel := *store.edges[key]
			out = append(out, &rel)
		}
	}

	for _, id := range store.order {
		collect(store.adjacency[id])
	}

	for id, keys := range store.adjacency {
		if _, ok := store.nodes[id]; !ok {
			collect(keys)
		}
	}

	return out
}

func neighborNodes(weighted []Neighbor) []*Node {
	out := make([]*Node, 0, len(weighted))

	for _, n := range weighted {
		out = append(out, n.Node)
	}

	return out
}
