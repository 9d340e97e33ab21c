package memory

import (
	"maps"
	"time"
)

// TaskType labels the kind of conversation a memory belongs to.
type TaskType string

const (
	TaskGeneralQA           TaskType = "general_qa"
	TaskTechnicalCoding     TaskType = "technical_coding"
	TaskEmotionalCounseling TaskType = "emotional_counseling"
	TaskCreativeWriting     TaskType = "creative_writing"
	TaskEducational         TaskType = "educational"
)

// TaskTypes lists every known task type.
var TaskTypes = []TaskType{
	TaskGeneralQA,
	TaskTechnicalCoding,
	TaskEmotionalCounseling,
	TaskCreativeWriting,
	TaskEducational,
}

// ParseTaskType returns the task type named by s, or TaskGeneralQA.
func ParseTaskType(s string) TaskType {
	for _, t := range TaskTypes {
		if string(t) == s {
			return t
		}
	}

	return TaskGeneralQA
}

// Procedural reports whether memories of this task type are skills or
// solutions rather than conceptual facts.
func (t TaskType) Procedural() bool {
	return t == TaskTechnicalCoding
}

/*
MemoryChunk is one unit of episodic memory, created once per user utterance.
Only SignificanceScore changes after creation.
*/
type MemoryChunk struct {
	ID                string         `json:"id"`
	Content           string         `json:"content"`
	Summary           string         `json:"summary,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	UserID            string         `json:"user_id"`
	TaskType          TaskType       `json:"task_type"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	SignificanceScore float64        `json:"significance_score"`
	Embedding         []float32      `json:"embedding,omitempty"`
}

func NewMemoryChunk(content, userID string, taskType TaskType, metadata map[string]any) *MemoryChunk {
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &MemoryChunk{
		Content:   content,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		TaskType:  taskType,
		Metadata:  metadata,
	}
}

// Clone returns a copy that shares no mutable state with chunk.
func (chunk *MemoryChunk) Clone() *MemoryChunk {
	out := *chunk
	out.Metadata = maps.Clone(chunk.Metadata)

	if chunk.Embedding != nil {
		out.Embedding = append([]float32(nil), chunk.Embedding...)
	}

	return &out
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk *MemoryChunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Node is an entity in a semantic or procedural graph.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func NewNode(id, label string, properties map[string]any) *Node {
	if properties == nil {
		properties = map[string]any{}
	}

	return &Node{
		ID:         id,
		Label:      label,
		Properties: properties,
		CreatedAt:  time.Now().UTC(),
	}
}

// Name returns the node's display name, falling back to its id.
func (node *Node) Name() string {
	if name, ok := node.Properties["name"].(string); ok && name != "" {
		return name
	}

	return node.ID
}

func (node *Node) Clone() *Node {
	out := *node
	out.Properties = maps.Clone(node.Properties)

	if node.Embedding != nil {
		out.Embedding = append([]float32(nil), node.Embedding...)
	}

	return &out
}

/*
merge applies an upsert of other onto node: property keys are overwritten,
label and embedding are replaced when other carries them, and the original
creation time is kept.
*/
func (node *Node) merge(other *Node) {
	if other.Label != "" {
		node.Label = other.Label
	}

	if len(other.Embedding) > 0 {
		node.Embedding = append([]float32(nil), other.Embedding...)
	}

	if node.Properties == nil {
		node.Properties = map[string]any{}
	}

	maps.Copy(node.Properties, other.Properties)
}

// Relationship is a directed, weighted, labelled edge.
type Relationship struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Label      string         `json:"label"`
	Weight     float64        `json:"weight"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func NewRelationship(sourceID, targetID, label string) *Relationship {
	return &Relationship{
		SourceID:   sourceID,
		TargetID:   targetID,
		Label:      label,
		Weight:     1.0,
		Properties: map[string]any{},
		CreatedAt:  time.Now().UTC(),
	}
}

// WithWeight sets the edge weight and returns the relationship.
func (rel *Relationship) WithWeight(weight float64) *Relationship {
	rel.Weight = weight
	return rel
}

// Key identifies the relationship by its (source, target, label) triple.
func (rel *Relationship) Key() EdgeKey {
	return EdgeKey{Source: rel.SourceID, Target: rel.TargetID, Label: rel.Label}
}

type EdgeKey struct {
	Source string
	Target string
	Label  string
}

// Neighbor is a node reached over an edge of the given weight.
type Neighbor struct {
	Node   *Node   `json:"node"`
	Weight float64 `json:"weight"`
}

/*
Extraction is what an entity/relation extractor produces for one utterance.
Cues are the node ids that should seed spreading activation for it.
*/
type Extraction struct {
	Nodes         []*Node         `json:"nodes"`
	Relationships []*Relationship `json:"relationships"`
	Cues          []string        `json:"cues,omitempty"`
}

// ActivatedNode is a node that ended a spreading activation above threshold.
type ActivatedNode struct {
	Node   *Node   `json:"node"`
	Energy float64 `json:"energy"`
}
