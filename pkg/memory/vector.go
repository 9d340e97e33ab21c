package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
)

// ConnectRetry bounds the connectivity checks made when a remote backend is
// selected.
var ConnectRetry = errors.DefaultRetryConfig()

/*
NewVectorStore returns the backend selected by cfg. When the remote index
cannot be reached it logs a warning and returns the in-memory store instead.
*/
func NewVectorStore(
	ctx context.Context, cfg config.Database, collection string, embedder Embedder,
) (VectorStore, error) {
	if embedder == nil {
		fallback, err := NewDeterministicEmbedder(cfg.VectorDim)

		if err != nil {
			return nil, err
		}

		embedder = fallback
	}

	if cfg.VectorBackend != config.BackendQdrant {
		return NewInMemoryVectorStore(embedder), nil
	}

	store := NewQdrantVectorStore(cfg.VectorURI, collection, cfg.VectorDim, embedder)

	if err := errors.Retry(ctx, ConnectRetry, func() error {
		return store.Ensure(ctx)
	}); err != nil {
		log.Warn(
			"vector backend unavailable, using in-memory store",
			"collection", collection,
			"uri", cfg.VectorURI,
			"error", err,
		)

		return NewInMemoryVectorStore(embedder), nil
	}

	log.Debug("vector backend ready", "collection", collection, "uri", cfg.VectorURI)

	return store, nil
}

/*
InMemoryVectorStore is the linear-scan baseline. Chunks live in an
insertion-ordered arena with an id index on the side.
*/
type InMemoryVectorStore struct {
	mu       sync.RWMutex
	embedder Embedder
	chunks   []*MemoryChunk
	index    map[string]int
}

func NewInMemoryVectorStore(embedder Embedder) *InMemoryVectorStore {
	return &InMemoryVectorStore{
		embedder: embedder,
		index:    make(map[string]int),
	}
}

func (store *InMemoryVectorStore) Add(ctx context.Context, chunk *MemoryChunk) (string, error) {
	if err := prepareChunk(ctx, chunk, store.embedder); err != nil {
		return "", err
	}

	stored := chunk.Clone()

	store.mu.Lock()
	defer store.mu.Unlock()

	if i, ok := store.index[stored.ID]; ok {
		store.chunks[i] = stored
		return stored.ID, nil
	}

	store.index[stored.ID] = len(store.chunks)
	store.chunks = append(store.chunks, stored)

	return stored.ID, nil
}

func (store *InMemoryVectorStore) Search(_ context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	store.mu.RLock()
	scored := make([]ScoredChunk, 0, len(store.chunks))

	for _, chunk := range store.chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}

		scored = append(scored, ScoredChunk{
			Chunk: chunk.Clone(),
			Score: CosineSimilarity(query, chunk.Embedding),
		})
	}
	store.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	return scored, nil
}

func (store *InMemoryVectorStore) Get(_ context.Context, id string) (*MemoryChunk, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	i, ok := store.index[id]

	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, errors.ErrNotFound)
	}

	return store.chunks[i].Clone(), nil
}

func (store *InMemoryVectorStore) UpdateScore(_ context.Context, id string, score float64) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	i, ok := store.index[id]

	if !ok {
		return fmt.Errorf("chunk %s: %w", id, errors.ErrNotFound)
	}

	store.chunks[i].SignificanceScore = score

	return nil
}

func (store *InMemoryVectorStore) Len(context.Context) int {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return len(store.chunks)
}

func (store *InMemoryVectorStore) Reset(context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.chunks = nil
	store.index = make(map[string]int)

	return nil
}

// Chunks returns copies of every stored chunk in insertion order.
func (store *InMemoryVectorStore) Chunks() []*MemoryChunk {
	store.mu.RLock()
	defer store.mu.RUnlock()

	out := make([]*MemoryChunk, 0, len(store.chunks))

	for _, chunk := range store.chunks {
		out = append(out, chunk.Clone())
	}

	return out
}

// prepareChunk assigns a missing id and computes a missing embedding.
func prepareChunk(ctx context.Context, chunk *MemoryChunk, embedder Embedder) error {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}

	if len(chunk.Embedding) > 0 || embedder == nil {
		return nil
	}

	embedding, err := embedder.Embed(ctx, chunk.Content)

	if err != nil {
		return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
	}

	chunk.Embedding = embedding

	return nil
}
