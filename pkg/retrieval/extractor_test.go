package retrieval

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/recall/pkg/memory"
)

func nodeIDs(extraction *memory.Extraction) []string {
	ids := make([]string, 0, len(extraction.Nodes))

	for _, node := range extraction.Nodes {
		ids = append(ids, node.ID)
	}

	return ids
}

func TestKeywordExtractor(t *testing.T) {
	Convey("Given a keyword extractor", t, func() {
		extractor := NewKeywordExtractor()
		ctx := context.Background()

		Convey("When a technical question mentions known entities", func() {
			extraction, err := extractor.Extract(ctx, "My Python code has a bug, how do I fix it?", memory.TaskTechnicalCoding)

			Convey("Then the entities should become nodes and cues in table order", func() {
				So(err, ShouldBeNil)
				So(nodeIDs(extraction), ShouldResemble, []string{"Python", "Bug"})
				So(extraction.Cues, ShouldResemble, []string{"Python", "Bug"})
				So(extraction.Nodes[0].Label, ShouldEqual, "Technology")
				So(extraction.Nodes[0].Properties["type"], ShouldEqual, "language")
			})

			Convey("Then confidence should reflect frequency and the help context", func() {
				So(extraction.Nodes[0].Properties["confidence"], ShouldAlmostEqual, 0.9, 1e-9)
			})

			Convey("Then the table relationship should be weighted by label confidence", func() {
				So(len(extraction.Relationships), ShouldEqual, 1)

				rel := extraction.Relationships[0]
				So(rel.SourceID, ShouldEqual, "Python")
				So(rel.TargetID, ShouldEqual, "Bug")
				So(rel.Label, ShouldEqual, "RELATED_TO")
				So(rel.Weight, ShouldAlmostEqual, 0.64, 1e-9)
				So(rel.Properties["task_type"], ShouldEqual, "technical_coding")
			})
		})

		Convey("When the text reads causal", func() {
			extraction, _ := extractor.Extract(ctx, "Docker fails because the API is down", memory.TaskTechnicalCoding)

			Convey("Then relation confidence should rise and a CAUSES edge appear", func() {
				So(nodeIDs(extraction), ShouldResemble, []string{"Docker", "API"})
				So(len(extraction.Relationships), ShouldEqual, 2)
				So(extraction.Relationships[0].Label, ShouldEqual, "USES")
				So(extraction.Relationships[0].Weight, ShouldAlmostEqual, 0.56, 1e-9)
				So(extraction.Relationships[1].Label, ShouldEqual, "CAUSES")
				So(extraction.Relationships[1].Weight, ShouldEqual, 0.7)
				So(extraction.Relationships[1].Properties["type"], ShouldEqual, "contextual")
			})
		})

		Convey("When the text is Chinese", func() {
			extraction, _ := extractor.Extract(ctx, "我的朋友喜欢运动", memory.TaskEmotionalCounseling)

			Convey("Then substring keywords should match", func() {
				So(nodeIDs(extraction), ShouldResemble, []string{"Friend", "Exercise"})
				So(extraction.Relationships[0].Label, ShouldEqual, "SUPPORTS")
				So(extraction.Relationships[0].Weight, ShouldAlmostEqual, 0.45, 1e-9)
			})
		})

		Convey("When a keyword only appears inside another word", func() {
			extraction, _ := extractor.Extract(ctx, "a rapid response", memory.TaskGeneralQA)

			Convey("Then nothing should be extracted", func() {
				So(extraction.Nodes, ShouldBeEmpty)
				So(extraction.Relationships, ShouldBeEmpty)
				So(extraction.Cues, ShouldBeEmpty)
			})
		})
	})
}
