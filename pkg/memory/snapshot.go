package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
)

// GraphSnapshot is the serialisable content of one graph instance.
type GraphSnapshot struct {
	Nodes         []*Node         `json:"nodes"`
	Relationships []*Relationship `json:"relationships"`
}

// Snapshot is the serialisable content of a user's memory.
type Snapshot struct {
	UserID     string         `json:"user_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Chunks     []*MemoryChunk `json:"chunks"`
	Semantic   GraphSnapshot  `json:"semantic"`
	Procedural GraphSnapshot  `json:"procedural"`
}

/*
Snapshot exports every chunk, node and edge the manager holds. Only the
in-memory backends can be exported; remote backends keep their own state and
return ErrUnavailable.
*/
func (manager *Manager) Snapshot(context.Context) (*Snapshot, error) {
	vectors, ok := manager.episodic.(*InMemoryVectorStore)

	if !ok {
		return nil, fmt.Errorf("snapshot of %s vector store: %w", backendName(manager.episodic), errors.ErrUnavailable)
	}

	semantic, err := exportGraph(manager.semantic)

	if err != nil {
		return nil, err
	}

	procedural, err := exportGraph(manager.procedural)

	if err != nil {
		return nil, err
	}

	return &Snapshot{
		UserID:     manager.UserID,
		CreatedAt:  time.Now().UTC(),
		Chunks:     vectors.Chunks(),
		Semantic:   semantic,
		Procedural: procedural,
	}, nil
}

func exportGraph(store GraphStore) (GraphSnapshot, error) {
	graph, ok := store.(*InMemoryGraphStore)

	if !ok {
		return GraphSnapshot{}, fmt.Errorf("snapshot of %s graph store: %w", backendName(store), errors.ErrUnavailable)
	}

	return GraphSnapshot{Nodes: graph.Nodes(), Relationships: graph.Relationships()}, nil
}

/*
Restore writes a snapshot back through the store interfaces, so it works for
any backend. The snapshot must belong to this manager's user.
*/
func (manager *Manager) Restore(ctx context.Context, snapshot *Snapshot) error {
	if snapshot.UserID != manager.UserID {
		return fmt.Errorf("snapshot for %q: %w", snapshot.UserID, errors.ErrForeignUser)
	}

	for _, chunk := range snapshot.Chunks {
		if _, err := manager.AddEpisodic(ctx, chunk); err != nil {
			return err
		}
	}

	if err := importGraph(ctx, manager.semantic, snapshot.Semantic); err != nil {
		return err
	}

	return importGraph(ctx, manager.procedural, snapshot.Procedural)
}

func importGraph(ctx context.Context, store GraphStore, graph GraphSnapshot) error {
	for _, node := range graph.Nodes {
		if err := store.AddNode(ctx, node); err != nil {
			return err
		}
	}

	for _, rel := range graph.Relationships {
		if err := store.AddRelationship(ctx, rel); err != nil {
			return err
		}
	}

	return nil
}
