package retrieval

import (
	"context"
	"math"
	"strings"

	"github.com/theapemachine/recall/pkg/memory"
)

// Extractor turns an utterance into graph nodes, relationships and cues.
type Extractor interface {
	Extract(ctx context.Context, text string, task memory.TaskType) (*memory.Extraction, error)
}

type entityRule struct {
	keywords   []string
	id         string
	label      string
	properties map[string]any
}

var entityRules = []entityRule{
	{[]string{"python"}, "Python", "Technology", map[string]any{"type": "language"}},
	{[]string{"powershell"}, "PowerShell", "Technology", map[string]any{"type": "shell"}},
	{[]string{"javascript"}, "JavaScript", "Technology", map[string]any{"type": "language"}},
	{[]string{"docker"}, "Docker", "Technology", map[string]any{"type": "container"}},
	{[]string{"api"}, "API", "Technology", map[string]any{"type": "interface"}},
	{[]string{"framework", "框架"}, "Framework", "Concept", map[string]any{"domain": "software"}},
	{[]string{"bug"}, "Bug", "Problem", map[string]any{"severity": "medium"}},
	{[]string{"error", "错误"}, "Error", "Problem", map[string]any{"severity": "medium"}},
	{[]string{"exception", "异常"}, "Exception", "Problem", map[string]any{"severity": "high"}},
	{[]string{"friend", "朋友"}, "Friend", "Person", map[string]any{"relation": "social"}},
	{[]string{"colleague", "同事"}, "Colleague", "Person", map[string]any{"relation": "work"}},
	{[]string{"family", "家人"}, "Family", "Person", map[string]any{"relation": "family"}},
	{[]string{"weight loss", "减肥"}, "WeightLoss", "Goal", map[string]any{"category": "health"}},
	{[]string{"exercise", "运动"}, "Exercise", "Activity", map[string]any{"category": "health"}},
	{[]string{"learning", "学习"}, "Learning", "Activity", map[string]any{"category": "education"}},
	{[]string{"executionpolicy"}, "ExecutionPolicy", "Concept", map[string]any{"domain": "security"}},
	{[]string{"permission", "权限"}, "Permission", "Concept", map[string]any{"domain": "security"}},
}

type relationRule struct {
	source, target string
	label          string
	weight         float64
}

var relationRules = []relationRule{
	{"Python", "Bug", "RELATED_TO", 0.8},
	{"JavaScript", "Bug", "RELATED_TO", 0.8},
	{"PowerShell", "ExecutionPolicy", "CONFIGURED_BY", 0.9},
	{"Docker", "API", "USES", 0.7},
	{"Exercise", "WeightLoss", "SUPPORTS", 0.9},
	{"Learning", "Exercise", "INCLUDES", 0.6},
	{"Friend", "Exercise", "SUPPORTS", 0.5},
	{"Colleague", "Learning", "SUPPORTS", 0.6},
	{"Permission", "ExecutionPolicy", "CONTROLLED_BY", 0.8},
	{"Error", "Bug", "IS_TYPE_OF", 0.7},
}

var labelConfidence = map[string]float64{
	"RELATED_TO":    0.8,
	"SUPPORTS":      0.9,
	"CONFIGURED_BY": 0.9,
	"USES":          0.7,
	"INCLUDES":      0.6,
	"CONTROLLED_BY": 0.8,
	"IS_TYPE_OF":    0.7,
}

var (
	helpCues       = []string{"how", "help", "problem", "问题", "帮助", "如何"}
	causalCues     = []string{"because", "therefore", "causes", "caused", "leads to", "因为", "所以", "导致", "引起", "造成"}
	dependencyCues = []string{"requires", "depends on", "based on", "uses", "需要", "依赖", "基于", "使用"}
)

/*
KeywordExtractor recognises a fixed table of entities and the relationships
between them. It stands in when no model-backed extractor is configured.
*/
type KeywordExtractor struct{}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

/*
Extract returns one node per recognised entity, with a confidence property
that also serves as its cue energy, the table relationships whose endpoints
were both found, and CAUSES or DEPENDS_ON edges between the first two
entities when the text reads causal or dependent.
*/
func (extractor *KeywordExtractor) Extract(
	_ context.Context, text string, task memory.TaskType,
) (*memory.Extraction, error) {
	lower := strings.ToLower(text)
	words := tokenSet(lower)
	extraction := &memory.Extraction{}
	found := make(map[string]bool)

	for _, rule := range entityRules {
		count := 0

		for _, keyword := range rule.keywords {
			count += keywordCount(lower, words, keyword)
		}

		if count == 0 {
			continue
		}

		properties := make(map[string]any, len(rule.properties)+1)

		for k, v := range rule.properties {
			properties[k] = v
		}

		properties["confidence"] = entityConfidence(count, lower, words)

		extraction.Nodes = append(extraction.Nodes, memory.NewNode(rule.id, rule.label, properties))
		extraction.Cues = append(extraction.Cues, rule.id)
		found[rule.id] = true
	}

	causal := anyKeyword(lower, words, causalCues)

	for _, rule := range relationRules {
		if !found[rule.source] || !found[rule.target] {
			continue
		}

		confidence := labelConfidence[rule.label]

		if causal {
			confidence = math.Min(confidence+0.1, 1)
		}

		rel := memory.NewRelationship(rule.source, rule.target, rule.label).WithWeight(rule.weight * confidence)
		rel.Properties = map[string]any{"task_type": string(task), "auto_extracted": true}
		extraction.Relationships = append(extraction.Relationships, rel)
	}

	if len(extraction.Cues) >= 2 {
		source, target := extraction.Cues[0], extraction.Cues[1]

		if causal {
			extraction.Relationships = append(extraction.Relationships, contextual(source, target, "CAUSES", 0.7, task))
		}

		if anyKeyword(lower, words, dependencyCues) {
			extraction.Relationships = append(extraction.Relationships, contextual(source, target, "DEPENDS_ON", 0.6, task))
		}
	}

	return extraction, nil
}

func contextual(source, target, label string, weight float64, task memory.TaskType) *memory.Relationship {
	rel := memory.NewRelationship(source, target, label).WithWeight(weight)
	rel.Properties = map[string]any{"type": "contextual", "task_type": string(task)}

	return rel
}

func entityConfidence(count int, lower string, words map[string]int) float64 {
	confidence := 0.7 + math.Min(float64(count)*0.1, 0.2)

	if anyKeyword(lower, words, helpCues) {
		confidence += 0.1
	}

	return math.Min(confidence, 1)
}

func anyKeyword(lower string, words map[string]int, keywords []string) bool {
	for _, keyword := range keywords {
		if containsKeyword(lower, words, keyword) {
			return true
		}
	}

	return false
}
