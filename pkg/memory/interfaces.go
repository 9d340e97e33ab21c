package memory

import "context"

// Embedder turns text into a fixed-dimension, L2-normalized vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

/*
VectorStore is the episodic memory index. The in-memory and the remote
implementation are interchangeable behind it.
*/
type VectorStore interface {
	Add(ctx context.Context, chunk *MemoryChunk) (string, error)
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)
	Get(ctx context.Context, id string) (*MemoryChunk, error)
	UpdateScore(ctx context.Context, id string, score float64) error
	Len(ctx context.Context) int
	Reset(ctx context.Context) error
}

/*
GraphStore is a directed, weighted, labelled property graph. Traversal through
Neighbors and WeightedNeighbors ignores edge direction.
*/
type GraphStore interface {
	AddNode(ctx context.Context, node *Node) error
	AddRelationship(ctx context.Context, rel *Relationship) error
	GetNode(ctx context.Context, id string) (*Node, error)
	Neighbors(ctx context.Context, id string) ([]*Node, error)
	WeightedNeighbors(ctx context.Context, id string) ([]Neighbor, error)
	NodeCount(ctx context.Context) int
	Reset(ctx context.Context) error
}
