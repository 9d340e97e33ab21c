package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/memory"
)

// Classifier decides which kind of task an utterance belongs to.
type Classifier interface {
	Classify(ctx context.Context, text string) memory.TaskType
}

// Ties between task types resolve in this order.
var classifiedTasks = []memory.TaskType{
	memory.TaskTechnicalCoding,
	memory.TaskEmotionalCounseling,
	memory.TaskCreativeWriting,
	memory.TaskEducational,
}

var taskKeywords = map[memory.TaskType][]string{
	memory.TaskTechnicalCoding: {
		"code", "bug", "error", "python", "function", "class", "algorithm", "debug",
		"performance", "api", "git", "powershell", "library", "framework", "def",
		"return", "import", "docker", "javascript", "nodejs", "react", "vue", "angular",
		"exception", "compile", "stacktrace",
		"代码", "错误", "函数", "类", "算法", "报错", "调试", "性能", "库", "框架",
	},
	memory.TaskEmotionalCounseling: {
		"feel", "feeling", "sad", "conflict", "friend", "family", "colleague", "manager",
		"anxious", "anxiety", "depressed", "happy", "relationship", "emotion", "stress",
		"worried", "afraid", "angry", "lonely",
		"感觉", "难过", "冲突", "朋友", "家人", "同事", "经理", "伤心", "焦虑", "沮丧",
		"开心", "关系", "感情", "情绪", "觉得", "心理", "压力", "烦恼", "困扰", "担心",
		"害怕", "愤怒", "失落",
	},
	memory.TaskCreativeWriting: {
		"write", "story", "novel", "poem", "poetry", "article", "script", "creative",
		"inspiration", "plot", "character", "dialogue",
		"写作", "创作", "故事", "小说", "诗歌", "文章", "剧本", "创意", "灵感", "情节",
		"人物", "对话", "描述", "修辞", "风格",
	},
	memory.TaskEducational: {
		"learn", "learning", "teach", "course", "knowledge", "concept", "theory",
		"principle", "explain", "definition", "example", "exercise", "homework", "exam",
		"review", "summary",
		"学习", "教学", "课程", "知识", "概念", "理论", "原理", "解释", "定义", "例子",
		"练习", "作业", "考试", "复习", "总结",
	},
}

/*
KeywordClassifier scores every task type by how many of its keywords occur in
the text. Latin keywords match whole words, CJK keywords match as substrings.
No match classifies as general QA.
*/
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (classifier *KeywordClassifier) Classify(_ context.Context, text string) memory.TaskType {
	task, _ := classifier.Decide(text)
	return task
}

/*
Decide returns the best task type and whether the keyword evidence was
unambiguous: at least one match and no tie for first place.
*/
func (classifier *KeywordClassifier) Decide(text string) (memory.TaskType, bool) {
	scores := classifier.Scores(text)
	best, bestScore, tied := memory.TaskGeneralQA, 0, false

	for _, task := range classifiedTasks {
		switch score := scores[task]; {
		case score > bestScore:
			best, bestScore, tied = task, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	return best, bestScore > 0 && !tied
}

// Scores counts keyword hits per task type.
func (classifier *KeywordClassifier) Scores(text string) map[memory.TaskType]int {
	lower := strings.ToLower(text)
	words := tokenSet(lower)
	scores := make(map[memory.TaskType]int, len(taskKeywords))

	for task, keywords := range taskKeywords {
		for _, keyword := range keywords {
			if containsKeyword(lower, words, keyword) {
				scores[task]++
			}
		}
	}

	return scores
}

/*
GeneratorClassifier asks a Generator to classify text whenever the keyword
classifier is not sure. Answers are cached by the first 200 characters of the
text.
*/
type GeneratorClassifier struct {
	keywords  *KeywordClassifier
	generator Generator

	mu    sync.Mutex
	cache map[string]memory.TaskType
}

func NewGeneratorClassifier(generator Generator) *GeneratorClassifier {
	return &GeneratorClassifier{
		keywords:  NewKeywordClassifier(),
		generator: generator,
		cache:     make(map[string]memory.TaskType),
	}
}

func (classifier *GeneratorClassifier) Classify(ctx context.Context, text string) memory.TaskType {
	task, confident := classifier.keywords.Decide(text)

	if confident || classifier.generator == nil {
		return task
	}

	key := text

	if runes := []rune(text); len(runes) > 200 {
		key = string(runes[:200])
	}

	classifier.mu.Lock()
	cached, ok := classifier.cache[key]
	classifier.mu.Unlock()

	if ok {
		return cached
	}

	completion, err := classifier.generator.Generate(ctx, "", fmt.Sprintf(classifyPrompt, text))

	if err != nil {
		log.Warn("classification fallback failed", "error", err)
		return task
	}

	answer := strings.ToLower(completion.Text)

	for _, candidate := range memory.TaskTypes {
		if strings.Contains(answer, string(candidate)) {
			task = candidate
			break
		}
	}

	classifier.mu.Lock()
	classifier.cache[key] = task
	classifier.mu.Unlock()

	return task
}

const classifyPrompt = `Classify the user input into exactly one task type:

technical_coding - programming, debugging, code questions
emotional_counseling - feelings, relationships, emotional support
creative_writing - stories, poems, creative text
educational - learning, teaching, explaining concepts
general_qa - anything else

User input: %q

Answer with the task type name only.`

func tokenSet(lower string) map[string]int {
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]int, len(words))

	for _, word := range words {
		set[word]++
	}

	return set
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxLatin1 {
			return false
		}
	}

	return true
}

// keywordCount counts occurrences of keyword in lower, by word for Latin
// single-word keywords and by substring otherwise.
func keywordCount(lower string, words map[string]int, keyword string) int {
	if isLatin(keyword) && !strings.Contains(keyword, " ") {
		return words[keyword]
	}

	return strings.Count(lower, keyword)
}

func containsKeyword(lower string, words map[string]int, keyword string) bool {
	return keywordCount(lower, words, keyword) > 0
}
