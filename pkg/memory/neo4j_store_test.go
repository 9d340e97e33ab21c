package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/recall/pkg/errors"
)

type cypherCall struct {
	cypher string
	params map[string]any
}

// recordingRunner captures every statement and answers reads with rows.
type recordingRunner struct {
	writes []cypherCall
	reads  []cypherCall
	rows   []map[string]any
}

func (runner *recordingRunner) Write(_ context.Context, cypher string, params map[string]any) error {
	runner.writes = append(runner.writes, cypherCall{cypher: cypher, params: params})
	return nil
}

func (runner *recordingRunner) Read(
	_ context.Context, cypher string, params map[string]any,
) ([]map[string]any, error) {
	runner.reads = append(runner.reads, cypherCall{cypher: cypher, params: params})
	return runner.rows, nil
}

func (runner *recordingRunner) Close(context.Context) error {
	return nil
}

func TestNodeFromRow(t *testing.T) {
	Convey("Given a row with nested properties and every column", t, func() {
		stamp := time.Date(2025, 6, 1, 12, 0, 0, 5, time.UTC)

		row := map[string]any{
			"id":         "python",
			"label":      "Technology",
			"properties": `{"name":"Python","meta":{"since":1991,"tags":["lang","dynamic"]}}`,
			"embedding":  []any{0.5, -0.25},
			"created_at": stamp.Format(time.RFC3339Nano),
		}

		Convey("When it is decoded", func() {
			node := nodeFromRow(row)

			Convey("Then nested properties should survive", func() {
				So(node.ID, ShouldEqual, "python")
				So(node.Label, ShouldEqual, "Technology")
				So(node.Properties["name"], ShouldEqual, "Python")
				So(node.Properties["meta"], ShouldResemble, map[string]any{
					"since": float64(1991),
					"tags":  []any{"lang", "dynamic"},
				})
				So(node.Embedding, ShouldResemble, []float32{0.5, -0.25})
				So(node.CreatedAt.Equal(stamp), ShouldBeTrue)
			})
		})

		Convey("When the optional columns are missing", func() {
			delete(row, "embedding")
			delete(row, "created_at")
			row["properties"] = nil

			node := nodeFromRow(row)

			Convey("Then the node should still decode with empty defaults", func() {
				So(node.ID, ShouldEqual, "python")
				So(node.Properties, ShouldNotBeNil)
				So(node.Properties, ShouldBeEmpty)
				So(node.Embedding, ShouldBeNil)
				So(node.CreatedAt.IsZero(), ShouldBeTrue)
			})
		})
	})
}

func TestNeo4jGraphStoreRelationships(t *testing.T) {
	Convey("Given a Neo4j graph store over a recording runner", t, func() {
		ctx := context.Background()
		runner := &recordingRunner{}
		store := NewNeo4jGraphStore(runner, "alice_semantic")

		Convey("When an edge names an endpoint that was never added", func() {
			err := store.AddRelationship(ctx, NewRelationship("A", "ghost", "RELATED").WithWeight(0.4))

			Convey("Then both endpoints should be merged so the edge is kept", func() {
				So(err, ShouldBeNil)
				So(len(runner.writes), ShouldEqual, 1)

				call := runner.writes[0]
				So(call.cypher, ShouldNotContainSubstring, "MATCH")
				So(call.cypher, ShouldContainSubstring, "MERGE (s:Entity {graph: $graph, id: $source})")
				So(call.cypher, ShouldContainSubstring, "MERGE (t:Entity {graph: $graph, id: $target})")
				So(call.params["graph"], ShouldEqual, "alice_semantic")
				So(call.params["source"], ShouldEqual, "A")
				So(call.params["target"], ShouldEqual, "ghost")
				So(call.params["weight"], ShouldEqual, 0.4)
			})
		})

		Convey("When an edge has no endpoints", func() {
			err := store.AddRelationship(ctx, &Relationship{Label: "RELATED"})

			Convey("Then it should be rejected without touching the database", func() {
				So(errors.Is(err, errors.ErrInvalidConfig), ShouldBeTrue)
				So(runner.writes, ShouldBeEmpty)
			})
		})

		Convey("When reading nodes and neighbors", func() {
			_, err := store.GetNode(ctx, "ghost")
			_, _ = store.WeightedNeighbors(ctx, "A")
			store.NodeCount(ctx)

			Convey("Then placeholders should be invisible to every read", func() {
				So(errors.Is(err, errors.ErrNotFound), ShouldBeTrue)
				So(len(runner.reads), ShouldEqual, 3)

				for _, call := range runner.reads {
					So(strings.Contains(call.cypher, "n.label IS NOT NULL"), ShouldBeTrue)
				}
			})
		})

		Convey("When a placeholder is later added as a node", func() {
			So(store.AddNode(ctx, NewNode("ghost", "Concept", nil)), ShouldBeNil)

			Convey("Then the write should keep an existing creation time and set the label", func() {
				So(len(runner.writes), ShouldEqual, 1)
				So(runner.writes[0].cypher, ShouldContainSubstring, "coalesce(n.created_at, $created_at)")
				So(runner.writes[0].params["label"], ShouldEqual, "Concept")
			})
		})
	})
}
