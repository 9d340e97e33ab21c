package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/stores/qdrant"
)

// QdrantVectorStore implements VectorStore on a Qdrant collection.
type QdrantVectorStore struct {
	client   *qdrant.Client
	dim      int
	embedder Embedder
}

func NewQdrantVectorStore(endpoint, collection string, dim int, embedder Embedder) *QdrantVectorStore {
	return &QdrantVectorStore{
		client:   qdrant.New(endpoint, collection),
		dim:      dim,
		embedder: embedder,
	}
}

// Ensure creates the collection when missing.
func (store *QdrantVectorStore) Ensure(ctx context.Context) error {
	return store.client.EnsureCollection(ctx, store.dim)
}

func (store *QdrantVectorStore) Add(ctx context.Context, chunk *MemoryChunk) (string, error) {
	if err := prepareChunk(ctx, chunk, store.embedder); err != nil {
		return "", err
	}

	point := qdrant.NewPoint(chunk.ID, chunk.Embedding, chunkPayload(chunk))

	if err := store.client.Upsert(ctx, []qdrant.Point{*point}); err != nil {
		return "", err
	}

	return chunk.ID, nil
}

func (store *QdrantVectorStore) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	points, err := store.client.Search(ctx, query, k)

	if err != nil {
		return nil, err
	}

	out := make([]ScoredChunk, 0, len(points))

	for _, p := range points {
		out = append(out, ScoredChunk{Chunk: chunkFromPoint(&p.Point), Score: p.Score})
	}

	return out, nil
}

func (store *QdrantVectorStore) Get(ctx context.Context, id string) (*MemoryChunk, error) {
	point, err := store.client.Get(ctx, id)

	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", id, err)
	}

	return chunkFromPoint(point), nil
}

func (store *QdrantVectorStore) UpdateScore(ctx context.Context, id string, score float64) error {
	return store.client.SetPayload(ctx, id, map[string]any{"significance_score": score})
}

func (store *QdrantVectorStore) Len(ctx context.Context) int {
	count, err := store.client.Count(ctx)

	if err != nil {
		log.Error("failed to count points", "collection", store.client.Collection, "error", err)
		return 0
	}

	return count
}

// Reset drops the collection and recreates it empty.
func (store *QdrantVectorStore) Reset(ctx context.Context) error {
	if err := store.client.DeleteCollection(ctx); err != nil {
		return err
	}

	return store.Ensure(ctx)
}

func chunkPayload(chunk *MemoryChunk) map[string]any {
	metadata, _ := json.Marshal(chunk.Metadata)

	return map[string]any{
		"content":            chunk.Content,
		"summary":            chunk.Summary,
		"timestamp":          chunk.Timestamp.Format(time.RFC3339Nano),
		"user_id":            chunk.UserID,
		"task_type":          string(chunk.TaskType),
		"metadata":           string(metadata),
		"significance_score": chunk.SignificanceScore,
	}
}

func chunkFromPoint(point *qdrant.Point) *MemoryChunk {
	chunk := &MemoryChunk{
		ID:        point.Key(),
		Embedding: point.Vector,
		Metadata:  map[string]any{},
	}

	payload := point.Payload
	chunk.Content, _ = payload["content"].(string)
	chunk.Summary, _ = payload["summary"].(string)
	chunk.UserID, _ = payload["user_id"].(string)
	chunk.SignificanceScore, _ = payload["significance_score"].(float64)

	if task, ok := payload["task_type"].(string); ok {
		chunk.TaskType = ParseTaskType(task)
	}

	if ts, ok := payload["timestamp"].(string); ok {
		chunk.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	}

	if raw, ok := payload["metadata"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &chunk.Metadata)
	}

	return chunk
}
