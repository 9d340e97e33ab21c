/*
Package scoring holds the heuristics that estimate how valuable a memory chunk
is when it is created, how relevant it is to a query, and how feedback moves
its significance. Every output lies in [0,1].
*/
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/theapemachine/recall/pkg/memory"
)

const recencyDecayRate = 0.1

// Initial score weights.
const (
	weightRecency  = 0.3
	weightContent  = 0.4
	weightTask     = 0.2
	weightMetadata = 0.1
)

// Relevance weights.
const (
	weightTextSimilarity = 0.4
	weightTaskMatch      = 0.3
	weightKeywords       = 0.2
	weightContext        = 0.1
)

var taskWeights = map[memory.TaskType]float64{
	memory.TaskTechnicalCoding:     1.2,
	memory.TaskEmotionalCounseling: 1.1,
	memory.TaskCreativeWriting:     1.0,
	memory.TaskEducational:         1.1,
	memory.TaskGeneralQA:           1.0,
}

var taskIndicators = map[memory.TaskType][]string{
	memory.TaskTechnicalCoding:     {"bug", "error", "exception", "issue", "solution"},
	memory.TaskEmotionalCounseling: {"feel", "emotion", "stress", "anxiety", "difficult", "support"},
}

var infoIndicators = []string{
	"specific", "detailed", "example", "such as", "steps", "method", "reason", "result",
}

var metadataKeys = []string{"user_id", "task_type", "keywords", "context", "importance"}

type taskPair struct {
	a, b memory.TaskType
}

var taskSimilarity = map[taskPair]float64{
	{memory.TaskTechnicalCoding, memory.TaskEducational}:   0.6,
	{memory.TaskEmotionalCounseling, memory.TaskGeneralQA}: 0.4,
	{memory.TaskCreativeWriting, memory.TaskEducational}:   0.3,
}

const defaultTaskSimilarity = 0.2

// Calculator is stateless apart from the clock used for recency.
type Calculator struct {
	now func() time.Time
}

type Option func(*Calculator)

// WithClock fixes the time recency is measured against.
func WithClock(now func() time.Time) Option {
	return func(calculator *Calculator) {
		calculator.now = now
	}
}

func NewCalculator(opts ...Option) *Calculator {
	calculator := &Calculator{now: time.Now}

	for _, opt := range opts {
		opt(calculator)
	}

	return calculator
}

/*
InitialScore estimates a new chunk's long-term value from its recency,
content quality, task importance and metadata richness.
*/
func (calculator *Calculator) InitialScore(chunk *memory.MemoryChunk) float64 {
	return clamp(
		calculator.Recency(chunk.Timestamp)*weightRecency +
			ContentQuality(chunk.Content)*weightContent +
			TaskImportance(chunk.Content, chunk.TaskType)*weightTask +
			MetadataRichness(chunk.Metadata)*weightMetadata,
	)
}

/*
Recency decays exponentially with the age of ts in days. An unset timestamp
scores a neutral 0.5.
*/
func (calculator *Calculator) Recency(ts time.Time) float64 {
	if ts.IsZero() {
		return 0.5
	}

	hours := calculator.now().Sub(ts).Hours()

	return clamp(math.Exp(-recencyDecayRate * hours / 24))
}

// RecencyFromString parses an RFC3339 or ISO-8601 timestamp; anything
// unparsable scores 0.5.
func (calculator *Calculator) RecencyFromString(ts string) float64 {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", time.DateOnly} {
		if parsed, err := time.Parse(layout, ts); err == nil {
			return calculator.Recency(parsed)
		}
	}

	return 0.5
}

// ContentQuality blends length, structure, informativeness and clarity.
// Empty content scores 0.
func ContentQuality(content string) float64 {
	if content == "" {
		return 0
	}

	length := math.Min(float64(utf8.RuneCountInString(content))/100, 1)

	return length*0.2 + structure(content)*0.3 + informativeness(content)*0.3 + clarity(content)*0.2
}

func structure(content string) float64 {
	score := 0.0

	if strings.ContainsAny(content, ".?!") {
		score += 0.4
	}

	if strings.Contains(content, "\n") {
		score += 0.3
	}

	if n := utf8.RuneCountInString(content); n >= 10 && n <= 1000 {
		score += 0.3
	}

	return score
}

func informativeness(content string) float64 {
	words := strings.Fields(content)

	if len(words) == 0 {
		return 0
	}

	lower := strings.ToLower(content)
	diversity := float64(len(wordSet(lower))) / float64(len(words))
	present := 0

	for _, indicator := range infoIndicators {
		if strings.Contains(lower, indicator) {
			present++
		}
	}

	return diversity*0.6 + float64(present)/float64(len(infoIndicators))*0.4
}

/*
clarity prefers sentences of around fifteen words and penalises a dominant
repeated word by up to 30%.
*/
func clarity(content string) float64 {
	words := strings.Fields(strings.ToLower(content))

	if len(words) == 0 {
		return 0
	}

	sentences := strings.Split(content, ".")
	total := 0

	for _, sentence := range sentences {
		total += len(strings.Fields(sentence))
	}

	avg := float64(total) / float64(len(sentences))
	lengthScore := clamp(1 - math.Abs(avg-15)/15)

	freq := make(map[string]int, len(words))
	maxFreq := 0

	for _, word := range words {
		freq[word]++
		maxFreq = max(maxFreq, freq[word])
	}

	penalty := math.Min(float64(maxFreq)/float64(len(words)), 0.3)

	return clamp(lengthScore * (1 - penalty))
}

// TaskImportance is half the task's base weight plus 0.1 per indicator word.
func TaskImportance(content string, task memory.TaskType) float64 {
	base, ok := taskWeights[task]

	if !ok {
		base = 1.0
	}

	lower := strings.ToLower(content)
	boost := 0.0

	for _, indicator := range taskIndicators[task] {
		if strings.Contains(lower, indicator) {
			boost += 0.1
		}
	}

	return math.Min(1, base*0.5+boost)
}

// MetadataRichness is the fraction of expected metadata keys present.
func MetadataRichness(metadata map[string]any) float64 {
	present := 0

	for _, key := range metadataKeys {
		if _, ok := metadata[key]; ok {
			present++
		}
	}

	return float64(present) / float64(len(metadataKeys))
}

/*
RelevanceScore estimates how well chunk answers query under task from word
overlap, task affinity, keyword overlap and a context heuristic.
*/
func (calculator *Calculator) RelevanceScore(chunk *memory.MemoryChunk, query string, task memory.TaskType) float64 {
	return clamp(
		TextSimilarity(chunk.Content, query)*weightTextSimilarity +
			TaskMatch(chunk.TaskType, task)*weightTaskMatch +
			KeywordOverlap(chunk, query)*weightKeywords +
			ContextRelevance(chunk.Content, query)*weightContext,
	)
}

// TextSimilarity is the Jaccard similarity of the lowercase word sets.
func TextSimilarity(a, b string) float64 {
	return jaccard(wordSet(strings.ToLower(a)), wordSet(strings.ToLower(b)))
}

// TaskMatch is 1 for equal task types and a symmetric table lookup otherwise.
func TaskMatch(a, b memory.TaskType) float64 {
	if a == b {
		return 1.0
	}

	if s, ok := taskSimilarity[taskPair{a, b}]; ok {
		return s
	}

	if s, ok := taskSimilarity[taskPair{b, a}]; ok {
		return s
	}

	return defaultTaskSimilarity
}

// KeywordOverlap compares the content words plus declared keywords against
// the query words.
func KeywordOverlap(chunk *memory.MemoryChunk, query string) float64 {
	keywords := wordSet(strings.ToLower(chunk.Content))

	for _, keyword := range Keywords(chunk.Metadata) {
		keywords[strings.ToLower(keyword)] = struct{}{}
	}

	return jaccard(keywords, wordSet(strings.ToLower(query)))
}

// Keywords reads the keywords metadata entry in any of its usual shapes.
func Keywords(metadata map[string]any) []string {
	switch v := metadata["keywords"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	case string:
		return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	default:
		return nil
	}
}

// ContextRelevance blends length similarity with substring containment.
func ContextRelevance(content, query string) float64 {
	cl := float64(utf8.RuneCountInString(content))
	ql := float64(utf8.RuneCountInString(query))
	lengthSimilarity := 1 - math.Abs(cl-ql)/math.Max(math.Max(cl, ql), 1)

	lc, lq := strings.ToLower(content), strings.ToLower(query)
	containment := 0.5

	if strings.Contains(lc, lq) || strings.Contains(lq, lc) {
		containment = 1.0
	}

	return clamp(lengthSimilarity*0.3 + containment*0.7)
}

// Feedback is a kind of user feedback on a recalled memory.
type Feedback string

const (
	FeedbackUseful     Feedback = "useful"
	FeedbackNotUseful  Feedback = "not_useful"
	FeedbackAccurate   Feedback = "accurate"
	FeedbackInaccurate Feedback = "inaccurate"
)

var feedbackWeights = map[Feedback]float64{
	FeedbackUseful:     0.2,
	FeedbackNotUseful:  -0.2,
	FeedbackAccurate:   0.15,
	FeedbackInaccurate: -0.25,
}

// ParseFeedback reports whether s names a known feedback type.
func ParseFeedback(s string) (Feedback, bool) {
	feedback := Feedback(strings.ToLower(strings.TrimSpace(s)))
	_, ok := feedbackWeights[feedback]

	return feedback, ok
}

/*
ApplyFeedback returns the chunk's significance moved by the feedback's
coefficient times |value|. Unknown feedback leaves it unchanged.
*/
func (calculator *Calculator) ApplyFeedback(chunk *memory.MemoryChunk, feedback Feedback, value float64) float64 {
	return clamp(chunk.SignificanceScore + feedbackWeights[feedback]*math.Abs(value))
}

// Ranked is a chunk with its relevance to a query and its final rank score.
type Ranked struct {
	Chunk     *memory.MemoryChunk `json:"chunk"`
	Relevance float64             `json:"relevance"`
	Score     float64             `json:"score"`
}

/*
Rank orders chunks for a query by 0.6 relevance plus 0.4 significance,
keeping the input order on ties.
*/
func (calculator *Calculator) Rank(chunks []*memory.MemoryChunk, query string, task memory.TaskType) []Ranked {
	out := make([]Ranked, 0, len(chunks))

	for _, chunk := range chunks {
		relevance := calculator.RelevanceScore(chunk, query, task)

		out = append(out, Ranked{
			Chunk:     chunk,
			Relevance: relevance,
			Score:     clamp(relevance*0.6 + chunk.SignificanceScore*0.4),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	return out
}

// Stats describes the fixed weight tables.
func (calculator *Calculator) Stats() map[string]any {
	tasks := make(map[string]float64, len(taskWeights))

	for task, weight := range taskWeights {
		tasks[string(task)] = weight
	}

	return map[string]any{
		"initial_weights": map[string]float64{
			"recency":           weightRecency,
			"content_quality":   weightContent,
			"task_importance":   weightTask,
			"metadata_richness": weightMetadata,
		},
		"relevance_weights": map[string]float64{
			"text_similarity":   weightTextSimilarity,
			"task_match":        weightTaskMatch,
			"keyword_overlap":   weightKeywords,
			"context_relevance": weightContext,
		},
		"task_type_weights": tasks,
		"feedback_weights": map[string]float64{
			string(FeedbackUseful):     feedbackWeights[FeedbackUseful],
			string(FeedbackNotUseful):  feedbackWeights[FeedbackNotUseful],
			string(FeedbackAccurate):   feedbackWeights[FeedbackAccurate],
			string(FeedbackInaccurate): feedbackWeights[FeedbackInaccurate],
		},
	}
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))

	for _, word := range words {
		set[word] = struct{}{}
	}

	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0

	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}

	return float64(intersection) / float64(len(a)+len(b)-intersection)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}

	return math.Max(0, math.Min(1, v))
}
