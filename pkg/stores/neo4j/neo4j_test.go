package neo4j

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecordRow(t *testing.T) {
	Convey("Given a record with matching keys and values", t, func() {
		record := &neo4j.Record{
			Keys:   []string{"id", "weight"},
			Values: []any{"a", 0.5},
		}

		Convey("Then the row should map keys onto values", func() {
			row := RecordRow(record)
			So(row["id"], ShouldEqual, "a")
			So(row["weight"], ShouldEqual, 0.5)
		})
	})
}

func TestNewUnreachable(t *testing.T) {
	Convey("Given a bolt uri nobody listens on", t, func() {
		_, err := New(context.Background(), "bolt://127.0.0.1:1", "neo4j", "secret", "neo4j", 200*time.Millisecond)

		Convey("Then connecting should fail", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
