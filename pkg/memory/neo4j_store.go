package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
)

// cypherRunner is the slice of the Neo4j client the graph store needs.
type cypherRunner interface {
	Write(ctx context.Context, cypher string, params map[string]any) error
	Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

/*
Neo4jGraphStore implements GraphStore on a Neo4j database. Every node carries
a graph property naming its instance, so the semantic and procedural graphs of
all users can share one database without seeing each other.

An edge may name an endpoint that was never added. Like the in-memory store,
the edge is kept: the missing endpoint is merged as an unlabeled placeholder
that reads ignore until AddNode fills it in.
*/
type Neo4jGraphStore struct {
	client cypherRunner
	graph  string
}

func NewNeo4jGraphStore(client cypherRunner, graph string) *Neo4jGraphStore {
	return &Neo4jGraphStore{client: client, graph: graph}
}

const nodeColumns = `n.id AS id, n.label AS label, n.properties AS properties,
	n.embedding AS embedding, n.created_at AS created_at`

func (store *Neo4jGraphStore) AddNode(ctx context.Context, node *Node) error {
	if node == nil || node.ID == "" {
		return fmt.Errorf("%w: node id is required", errors.ErrInvalidConfig)
	}

	merged := node.Clone()

	if existing, err := store.GetNode(ctx, node.ID); err == nil {
		existing.merge(node)
		merged = existing
	}

	props, err := json.Marshal(merged.Properties)

	if err != nil {
		return err
	}

	embedding := make([]float64, len(merged.Embedding))

	for i, v := range merged.Embedding {
		embedding[i] = float64(v)
	}

	return store.client.Write(ctx, `
		MERGE (n:Entity {graph: $graph, id: $id})
		SET n.created_at = coalesce(n.created_at, $created_at),
			n.label = $label, n.properties = $properties, n.embedding = $embedding
	`, map[string]any{
		"graph":      store.graph,
		"id":         merged.ID,
		"label":      merged.Label,
		"properties": string(props),
		"embedding":  embedding,
		"created_at": merged.CreatedAt.Format(time.RFC3339Nano),
	})
}

/*
AddRelationship merges on the triple and overwrites the weight. Missing
endpoints are merged as placeholders so the edge is never dropped.
*/
func (store *Neo4jGraphStore) AddRelationship(ctx context.Context, rel *Relationship) error {
	if rel == nil || rel.SourceID == "" || rel.TargetID == "" {
		return fmt.Errorf("%w: relationship endpoints are required", errors.ErrInvalidConfig)
	}

	props, err := json.Marshal(rel.Properties)

	if err != nil {
		return err
	}

	return store.client.Write(ctx, `
		MERGE (s:Entity {graph: $graph, id: $source})
		MERGE (t:Entity {graph: $graph, id: $target})
		MERGE (s)-[r:RELATES {label: $label}]->(t)
		SET r.weight = $weight, r.properties = $properties
	`, map[string]any{
		"graph":      store.graph,
		"source":     rel.SourceID,
		"target":     rel.TargetID,
		"label":      rel.Label,
		"weight":     rel.Weight,
		"properties": string(props),
	})
}

func (store *Neo4jGraphStore) GetNode(ctx context.Context, id string) (*Node, error) {
	rows, err := store.client.Read(ctx,
		"MATCH (n:Entity {graph: $graph, id: $id}) WHERE n.label IS NOT NULL RETURN "+nodeColumns,
		map[string]any{"graph": store.graph, "id": id},
	)

	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("node %s: %w", id, errors.ErrNotFound)
	}

	return nodeFromRow(rows[0]), nil
}

func (store *Neo4jGraphStore) Neighbors(ctx context.Context, id string) ([]*Node, error) {
	weighted, err := store.WeightedNeighbors(ctx, id)

	if err != nil {
		return nil, err
	}

	return neighborNodes(weighted), nil
}

func (store *Neo4jGraphStore) WeightedNeighbors(ctx context.Context, id string) ([]Neighbor, error) {
	rows, err := store.client.Read(ctx, `
		MATCH (:Entity {graph: $graph, id: $id})-[r:RELATES]-(n:Entity {graph: $graph})
		WHERE n.label IS NOT NULL
		RETURN `+nodeColumns+`, coalesce(r.weight, 1.0) AS weight
	`, map[string]any{"graph": store.graph, "id": id})

	if err != nil {
		return nil, err
	}

	out := make([]Neighbor, 0, len(rows))

	for _, row := range rows {
		weight, ok := row["weight"].(float64)

		if !ok {
			weight = 1.0
		}

		out = append(out, Neighbor{Node: nodeFromRow(row), Weight: weight})
	}

	return out, nil
}

func (store *Neo4jGraphStore) NodeCount(ctx context.Context) int {
	rows, err := store.client.Read(ctx,
		"MATCH (n:Entity {graph: $graph}) WHERE n.label IS NOT NULL RETURN count(n) AS count",
		map[string]any{"graph": store.graph},
	)

	if err != nil || len(rows) == 0 {
		return 0
	}

	count, _ := rows[0]["count"].(int64)

	return int(count)
}

func (store *Neo4jGraphStore) Reset(ctx context.Context) error {
	return store.client.Write(ctx,
		"MATCH (n:Entity {graph: $graph}) DETACH DELETE n",
		map[string]any{"graph": store.graph},
	)
}

func nodeFromRow(row map[string]any) *Node {
	node := &Node{Properties: map[string]any{}}
	node.ID, _ = row["id"].(string)
	node.Label, _ = row["label"].(string)

	if raw, ok := row["properties"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &node.Properties)
	}

	if values, ok := row["embedding"].([]any); ok {
		node.Embedding = make([]float32, 0, len(values))

		for _, v := range values {
			if f, ok := v.(float64); ok {
				node.Embedding = append(node.Embedding, float32(f))
			}
		}
	}

	if ts, ok := row["created_at"].(string); ok {
		node.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}

	return node
}

// Close releases the underlying driver.
func (store *Neo4jGraphStore) Close(ctx context.Context) error {
	return store.client.Close(ctx)
}
