package core

import (
	"strings"
	"time"
)

// SubQuestionType is the role a sub-question plays in answering the original query.
type SubQuestionType string

const (
	TypeResearch     SubQuestionType = "research"
	TypeAnalysis     SubQuestionType = "analysis"
	TypeComparison   SubQuestionType = "comparison"
	TypeVerification SubQuestionType = "verification"
	TypeSynthesis    SubQuestionType = "synthesis"
)

// ParseSubQuestionType maps free text onto a SubQuestionType, defaulting to research.
func ParseSubQuestionType(s string) SubQuestionType {
	switch SubQuestionType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeAnalysis:
		return TypeAnalysis
	case TypeComparison:
		return TypeComparison
	case TypeVerification:
		return TypeVerification
	case TypeSynthesis:
		return TypeSynthesis
	default:
		return TypeResearch
	}
}

// Intent is the closed set of request intents.
type Intent string

const (
	IntentResearch   Intent = "RESEARCH"
	IntentAnalysis   Intent = "ANALYSIS"
	IntentComparison Intent = "COMPARISON"
	IntentFactual    Intent = "FACTUAL"
	IntentProcedural Intent = "PROCEDURAL"
	IntentCreative   Intent = "CREATIVE"
)

// Intents lists every intent in the closed set.
var Intents = []Intent{IntentResearch, IntentAnalysis, IntentComparison, IntentFactual, IntentProcedural, IntentCreative}

// ParseIntent returns the intent named in s and whether it was recognised.
func ParseIntent(s string) (Intent, bool) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for _, in := range Intents {
		if up == string(in) {
			return in, true
		}
	}
	return IntentResearch, false
}

// Complexity buckets a decomposition by expected effort.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityCritical Complexity = "critical"
)

// Priority bounds for sub-questions.
const (
	MinPriority = 1
	MaxPriority = 5
)

// SubQuestion is one decomposed unit of a complex query.
type SubQuestion struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Type          SubQuestionType `json:"type"`
	Priority      int             `json:"priority"`
	Dependencies  []string        `json:"dependencies"`
	ExpectedTools []string        `json:"expected_tools"`
	Confidence    float64         `json:"confidence"`
}

// ClampPriority bounds p to [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// DecompositionMethod records where sub-questions came from.
type DecompositionMethod string

const (
	DecompositionGenerated DecompositionMethod = "generated"
	DecompositionFallback  DecompositionMethod = "fallback"
)

// QueryDecomposition is the plan produced for one request.
type QueryDecomposition struct {
	OriginalQuery   string              `json:"original_query"`
	Intent          Intent              `json:"intent"`
	SubQuestions    []SubQuestion       `json:"sub_questions"`
	ExecutionOrder  []string            `json:"execution_order"`
	Complexity      Complexity          `json:"complexity"`
	ComplexityScore float64             `json:"complexity_score"`
	EstimatedTime   time.Duration       `json:"estimated_time"`
	Method          DecompositionMethod `json:"method"`
}

// SubQuestion returns the sub-question with the given id.
func (d *QueryDecomposition) SubQuestion(id string) (SubQuestion, bool) {
	for _, sq := range d.SubQuestions {
		if sq.ID == id {
			return sq, true
		}
	}
	return SubQuestion{}, false
}
