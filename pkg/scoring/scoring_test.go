package scoring

import (
	"math"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"

	"github.com/theapemachine/recall/pkg/memory"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newCalculator() *Calculator {
	return NewCalculator(WithClock(func() time.Time { return fixedNow }))
}

func TestInitialScore(t *testing.T) {
	Convey("Given two chunks that differ only in content", t, func() {
		calculator := newCalculator()

		empty := &memory.MemoryChunk{Timestamp: fixedNow, TaskType: memory.TaskGeneralQA, Metadata: map[string]any{}}
		rich := &memory.MemoryChunk{
			Timestamp: fixedNow,
			TaskType:  memory.TaskGeneralQA,
			Metadata:  map[string]any{},
			Content: "Docker images are built in layers. Each instruction adds a specific layer, " +
				"for example a RUN step.\nThe result is cached between builds.",
		}

		Convey("Then the empty chunk should have no content quality", func() {
			So(ContentQuality(empty.Content), ShouldEqual, 0)
			So(MetadataRichness(empty.Metadata), ShouldEqual, 0)
		})

		Convey("Then the empty chunk should score strictly lower", func() {
			So(calculator.InitialScore(empty), ShouldBeLessThan, calculator.InitialScore(rich))
		})

		Convey("Then the empty chunk should score exactly recency and task importance", func() {
			So(calculator.InitialScore(empty), ShouldAlmostEqual, 0.3*1.0+0.2*0.5, 1e-9)
		})
	})
}

func TestScoresStayInRange(t *testing.T) {
	calculator := newCalculator()

	contents := []string{
		"",
		" ",
		"a",
		"bug bug bug bug bug bug error exception issue solution",
		"I feel stress and anxiety, it is difficult, I need support and emotion.",
		strings.Repeat("word ", 500),
		"Specific detailed example such as steps method reason result.\n\nMore.",
		"学习 朋友 很 重要。",
	}
	times := []time.Time{{}, fixedNow, fixedNow.Add(-10000 * time.Hour), fixedNow.Add(48 * time.Hour)}
	metadata := []map[string]any{
		nil,
		{},
		{"user_id": "u", "task_type": "x", "keywords": []any{"a", 1}, "context": "c", "importance": 1, "extra": true},
	}

	for _, content := range contents {
		for _, ts := range times {
			for _, md := range metadata {
				for _, task := range memory.TaskTypes {
					chunk := &memory.MemoryChunk{
						Content: content, Timestamp: ts, Metadata: md, TaskType: task, SignificanceScore: 0.5,
					}

					for _, score := range []float64{
						calculator.InitialScore(chunk),
						calculator.RelevanceScore(chunk, content+" query", memory.TaskTechnicalCoding),
						calculator.RelevanceScore(chunk, "", task),
						calculator.ApplyFeedback(chunk, FeedbackUseful, 10),
						calculator.ApplyFeedback(chunk, FeedbackInaccurate, -10),
					} {
						assert.False(t, math.IsNaN(score))
						assert.GreaterOrEqual(t, score, 0.0)
						assert.LessOrEqual(t, score, 1.0)
					}
				}
			}
		}
	}
}

func TestRecency(t *testing.T) {
	Convey("Given a calculator with a fixed clock", t, func() {
		calculator := newCalculator()

		Convey("Then a fresh timestamp should score 1", func() {
			So(calculator.Recency(fixedNow), ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("Then ten days should decay to exp(-1)", func() {
			So(calculator.Recency(fixedNow.Add(-240*time.Hour)), ShouldAlmostEqual, math.Exp(-1), 1e-9)
		})

		Convey("Then a future timestamp should clamp to 1", func() {
			So(calculator.Recency(fixedNow.Add(time.Hour)), ShouldEqual, 1.0)
		})

		Convey("Then missing or unparsable timestamps should be neutral", func() {
			So(calculator.Recency(time.Time{}), ShouldEqual, 0.5)
			So(calculator.RecencyFromString("yesterday-ish"), ShouldEqual, 0.5)
			So(calculator.RecencyFromString("2025-06-01T12:00:00Z"), ShouldAlmostEqual, 1.0, 1e-9)
			So(calculator.RecencyFromString("2025-05-22T12:00:00"), ShouldAlmostEqual, math.Exp(-1), 1e-9)
		})
	})
}

func TestComponents(t *testing.T) {
	Convey("Given the individual heuristics", t, func() {
		Convey("Then task importance should count indicators", func() {
			So(TaskImportance("A bug and an Error", memory.TaskTechnicalCoding), ShouldAlmostEqual, 0.8, 1e-9)
			So(TaskImportance("bug error exception issue solution", memory.TaskTechnicalCoding), ShouldEqual, 1.0)
			So(TaskImportance("bug", memory.TaskGeneralQA), ShouldEqual, 0.5)
			So(TaskImportance("I feel stress", memory.TaskEmotionalCounseling), ShouldAlmostEqual, 0.75, 1e-9)
		})

		Convey("Then metadata richness should be the fraction of expected keys", func() {
			So(MetadataRichness(map[string]any{"user_id": "u", "keywords": nil, "other": 1}), ShouldAlmostEqual, 0.4, 1e-9)
			So(MetadataRichness(nil), ShouldEqual, 0)
		})

		Convey("Then task match should be symmetric with a default", func() {
			So(TaskMatch(memory.TaskEducational, memory.TaskEducational), ShouldEqual, 1.0)
			So(TaskMatch(memory.TaskTechnicalCoding, memory.TaskEducational), ShouldEqual, 0.6)
			So(TaskMatch(memory.TaskEducational, memory.TaskTechnicalCoding), ShouldEqual, 0.6)
			So(TaskMatch(memory.TaskGeneralQA, memory.TaskEmotionalCounseling), ShouldEqual, 0.4)
			So(TaskMatch(memory.TaskCreativeWriting, memory.TaskTechnicalCoding), ShouldEqual, 0.2)
		})

		Convey("Then text similarity should be the Jaccard index of word sets", func() {
			So(TextSimilarity("A b c", "b C d"), ShouldAlmostEqual, 0.5, 1e-9)
			So(TextSimilarity("", "b"), ShouldEqual, 0)
		})

		Convey("Then keyword overlap should include declared keywords", func() {
			chunk := &memory.MemoryChunk{Content: "docker", Metadata: map[string]any{"keywords": []string{"Compose"}}}
			So(KeywordOverlap(chunk, "compose"), ShouldAlmostEqual, 0.5, 1e-9)
			So(Keywords(map[string]any{"keywords": "a, b"}), ShouldResemble, []string{"a", "b"})
		})

		Convey("Then context relevance should favour containment", func() {
			So(ContextRelevance("same text", "same text"), ShouldAlmostEqual, 1.0, 1e-9)
			So(ContextRelevance("abcd", "wxyz"), ShouldAlmostEqual, 0.3+0.35, 1e-9)
		})

		Convey("Then clarity should reward fifteen-word sentences", func() {
			sentence := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen"
			So(clarity(sentence), ShouldBeGreaterThan, clarity("one. two. three."))
		})
	})
}

func TestApplyFeedback(t *testing.T) {
	Convey("Given a chunk with significance 0.5", t, func() {
		calculator := newCalculator()
		chunk := &memory.MemoryChunk{SignificanceScore: 0.5}

		Convey("Then inaccurate feedback of 1.0 should give 0.25", func() {
			So(calculator.ApplyFeedback(chunk, FeedbackInaccurate, 1.0), ShouldEqual, 0.25)
		})

		Convey("Then the feedback value should be used by magnitude", func() {
			So(calculator.ApplyFeedback(chunk, FeedbackUseful, -0.5), ShouldAlmostEqual, 0.6, 1e-9)
			So(calculator.ApplyFeedback(chunk, FeedbackAccurate, 1.0), ShouldAlmostEqual, 0.65, 1e-9)
			So(calculator.ApplyFeedback(chunk, FeedbackNotUseful, 1.0), ShouldAlmostEqual, 0.3, 1e-9)
		})

		Convey("Then results should clamp and unknown feedback should do nothing", func() {
			So(calculator.ApplyFeedback(chunk, FeedbackUseful, 5), ShouldEqual, 1.0)
			So(calculator.ApplyFeedback(chunk, FeedbackInaccurate, 5), ShouldEqual, 0.0)
			So(calculator.ApplyFeedback(chunk, Feedback("meh"), 1), ShouldEqual, 0.5)
		})

		Convey("Then feedback names should parse", func() {
			feedback, ok := ParseFeedback(" Useful ")
			So(ok, ShouldBeTrue)
			So(feedback, ShouldEqual, FeedbackUseful)

			_, ok = ParseFeedback("great")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRank(t *testing.T) {
	Convey("Given chunks of varying relevance and significance", t, func() {
		calculator := newCalculator()
		chunks := []*memory.MemoryChunk{
			{ID: "weather", Content: "the weather is nice", TaskType: memory.TaskGeneralQA},
			{ID: "docker", Content: "docker build fails with an error", TaskType: memory.TaskTechnicalCoding, SignificanceScore: 0.8},
			{ID: "docker-low", Content: "docker build fails with an error", TaskType: memory.TaskTechnicalCoding},
		}

		ranked := calculator.Rank(chunks, "docker build fails", memory.TaskTechnicalCoding)

		Convey("Then the most relevant and significant chunk should come first", func() {
			So(len(ranked), ShouldEqual, 3)
			So(ranked[0].Chunk.ID, ShouldEqual, "docker")
			So(ranked[1].Chunk.ID, ShouldEqual, "docker-low")
			So(ranked[2].Chunk.ID, ShouldEqual, "weather")
		})

		Convey("Then stats should expose the weight tables", func() {
			stats := calculator.Stats()
			So(stats["task_type_weights"].(map[string]float64)["technical_coding"], ShouldEqual, 1.2)
		})
	})
}
