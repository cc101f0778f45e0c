package decompose

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/toolmesh/core"
)

var (
	comparisonCues = []string{" vs ", " vs. ", "versus", "compare", "comparison", "difference between", "differences between", "better than", "pros and cons"}
	synthesisCues  = []string{"summarize", "summarise", "summary", "overview", "synthesize", "synthesise", "implications", "impact of", "explain how"}

	comparisonSplit = regexp.MustCompile(`(?i)\s+(?:vs\.?|versus|compared (?:to|with)|and|or|with)\s+`)
	comparisonLead  = regexp.MustCompile(`(?i)^.*?\b(?:compare|comparison of|difference(?:s)? between|between)\s+`)
	partSplit       = regexp.MustCompile(`(?i)\?|;|\band also\b`)
)

func containsAny(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

// fallbackSubQuestions builds a deterministic plan from surface cues of the
// query. It is used whenever generation fails or returns malformed output.
func fallbackSubQuestions(query string, max int) []core.SubQuestion {
	q := strings.TrimSpace(query)
	lower := " " + strings.ToLower(q) + " "

	switch {
	case containsAny(lower, comparisonCues):
		return comparisonTemplate(q)
	case len(splitParts(q)) > 1:
		return multiPartTemplate(splitParts(q), max)
	case containsAny(lower, synthesisCues):
		return []core.SubQuestion{
			{ID: "q1", Question: "Gather the key facts about: " + q, Type: core.TypeResearch, Priority: 1, Confidence: 0.6},
			{ID: "q2", Question: "Analyze the main themes and relationships in the gathered facts for: " + q, Type: core.TypeAnalysis, Priority: 2, Dependencies: []string{"q1"}, Confidence: 0.6},
			{ID: "q3", Question: "Synthesize a concise answer to: " + q, Type: core.TypeSynthesis, Priority: 3, Dependencies: []string{"q2"}, Confidence: 0.6},
		}
	default:
		return []core.SubQuestion{
			{ID: "q1", Question: "Research background information for: " + q, Type: core.TypeResearch, Priority: 1, Confidence: 0.5},
			{ID: "q2", Question: "Analyze the findings relevant to: " + q, Type: core.TypeAnalysis, Priority: 2, Dependencies: []string{"q1"}, Confidence: 0.5},
			{ID: "q3", Question: "Verify the conclusions for: " + q, Type: core.TypeVerification, Priority: 3, Dependencies: []string{"q2"}, Confidence: 0.5},
		}
	}
}

func comparisonTemplate(q string) []core.SubQuestion {
	a, b, ok := comparisonSubjects(q)
	if !ok {
		return []core.SubQuestion{
			{ID: "q1", Question: "Research the items being compared in: " + q, Type: core.TypeResearch, Priority: 1, Confidence: 0.5},
			{ID: "q2", Question: "Analyze the criteria that matter for: " + q, Type: core.TypeAnalysis, Priority: 2, Dependencies: []string{"q1"}, Confidence: 0.5},
			{ID: "q3", Question: "Compare the items and conclude: " + q, Type: core.TypeComparison, Priority: 3, Dependencies: []string{"q1", "q2"}, Confidence: 0.5},
		}
	}
	return []core.SubQuestion{
		{ID: "q1", Question: "Research " + a, Type: core.TypeResearch, Priority: 1, Confidence: 0.6},
		{ID: "q2", Question: "Research " + b, Type: core.TypeResearch, Priority: 1, Confidence: 0.6},
		{ID: "q3", Question: "Compare " + a + " and " + b, Type: core.TypeComparison, Priority: 2, Dependencies: []string{"q1", "q2"}, Confidence: 0.6},
	}
}

// comparisonSubjects extracts "A" and "B" from queries such as
// "compare A and B" or "A vs B".
func comparisonSubjects(q string) (string, string, bool) {
	body := strings.TrimRight(strings.TrimSpace(q), "?.!")
	body = comparisonLead.ReplaceAllString(body, "")
	parts := comparisonSplit.Split(body, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

func splitParts(q string) []string {
	var parts []string
	for _, p := range partSplit.Split(q, -1) {
		p = strings.Trim(strings.TrimSpace(p), ",.")
		if len(strings.Fields(p)) >= 2 {
			parts = append(parts, p)
		}
	}
	return parts
}

func multiPartTemplate(parts []string, max int) []core.SubQuestion {
	if len(parts) > max {
		parts = parts[:max]
	}
	subs := make([]core.SubQuestion, len(parts))
	for i, p := range parts {
		subs[i] = core.SubQuestion{
			ID:         "q" + strconv.Itoa(i+1),
			Question:   p,
			Type:       core.TypeResearch,
			Priority:   1,
			Confidence: 0.6,
		}
	}
	return subs
}
