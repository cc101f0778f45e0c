package core

// SelectionMethod reports which path produced a selection.
type SelectionMethod string

const (
	MethodEnsemble SelectionMethod = "ensemble"
	MethodLexical  SelectionMethod = "lexical"
	MethodSemantic SelectionMethod = "semantic"
	MethodCached   SelectionMethod = "cached"
	MethodNoTools  SelectionMethod = "no_tools"
)

// Weights is the lexical/semantic split applied in one ensemble vote.
type Weights struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
}

// Selection is the result of selecting tools for a query.
type Selection struct {
	Tools            []string           `json:"tools"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Reasonings       map[string]string  `json:"reasonings"`
	Method           SelectionMethod    `json:"method"`
	Weights          Weights            `json:"weights"`
}

// TopConfidence returns the score of the first selected tool, 0 when empty.
func (s *Selection) TopConfidence() float64 {
	if s == nil || len(s.Tools) == 0 {
		return 0
	}
	return s.ConfidenceScores[s.Tools[0]]
}

// Clone returns a deep copy so cached selections are never shared mutably.
func (s *Selection) Clone() *Selection {
	if s == nil {
		return nil
	}
	out := &Selection{
		Tools:            append([]string(nil), s.Tools...),
		ConfidenceScores: make(map[string]float64, len(s.ConfidenceScores)),
		Reasonings:       make(map[string]string, len(s.Reasonings)),
		Method:           s.Method,
		Weights:          s.Weights,
	}
	for k, v := range s.ConfidenceScores {
		out.ConfidenceScores[k] = v
	}
	for k, v := range s.Reasonings {
		out.Reasonings[k] = v
	}
	return out
}
