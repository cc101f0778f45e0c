package core

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// DocumentRefPattern matches explicit document identifiers such as
// "doc-4f9a2c1b" or "DOC_20240917".
var DocumentRefPattern = regexp.MustCompile(`(?i)\bdoc[-_][a-z0-9]{6,}\b`)

// CanonicalDocumentID lower-cases id and normalizes a "doc_" prefix to
// "doc-", so "DOC_ab12cd34" and "doc-ab12cd34" name the same document.
func CanonicalDocumentID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if rest, ok := strings.CutPrefix(id, "doc_"); ok {
		return "doc-" + rest
	}
	return id
}

// DocumentRefs returns the distinct document identifiers found in text in
// canonical form (see CanonicalDocumentID), in order of appearance.
func DocumentRefs(text string) []string {
	matches := DocumentRefPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = CanonicalDocumentID(m)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Category groups tools by the kind of capability they provide.
type Category string

const (
	CategoryInformation   Category = "information"
	CategoryUtility       Category = "utility"
	CategoryDocument      Category = "document"
	CategoryCommunication Category = "communication"
	CategoryComputation   Category = "computation"
	CategorySearch        Category = "search"
	CategoryIntegration   Category = "integration"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryInformation,
	CategoryUtility,
	CategoryDocument,
	CategoryCommunication,
	CategoryComputation,
	CategorySearch,
	CategoryIntegration,
}

// ToolMetadata describes a registered capability. Name is unique within a
// registry.
type ToolMetadata struct {
	Name          string   `json:"name" yaml:"name" validate:"required,max=64"`
	Category      Category `json:"category" yaml:"category" validate:"required,oneof=information utility document communication computation search integration"`
	Priority      int      `json:"priority" yaml:"priority" validate:"gte=0,lte=100"`
	Triggers      []string `json:"triggers,omitempty" yaml:"triggers" validate:"dive,required"`
	Description   string   `json:"description" yaml:"description" validate:"required"`
	UsageExamples []string `json:"usage_examples,omitempty" yaml:"usage_examples"`
	// Semantic is the text embedded for similarity search. See SemanticText.
	Semantic string `json:"semantic_text,omitempty" yaml:"semantic_text"`
	// SideEffectFree declares that concurrent invocation alongside other
	// side-effect-free tools is safe.
	SideEffectFree bool `json:"side_effect_free" yaml:"side_effect_free"`
}

// SemanticText returns the text used to embed the tool. When no explicit
// semantic text is set it is derived from the description and examples.
func (m ToolMetadata) SemanticText() string {
	if strings.TrimSpace(m.Semantic) != "" {
		return m.Semantic
	}
	parts := make([]string, 0, len(m.UsageExamples)+1)
	parts = append(parts, m.Description)
	parts = append(parts, m.UsageExamples...)
	return strings.Join(parts, ". ")
}

// Fingerprint hashes the semantic text so embeddings can be regenerated when
// metadata changes.
func (m ToolMetadata) Fingerprint() string {
	sum := sha256.Sum256([]byte(m.SemanticText()))
	return hex.EncodeToString(sum[:])
}

// HasTrigger reports whether keyword is one of the tool's triggers (case-insensitive).
func (m ToolMetadata) HasTrigger(keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	for _, t := range m.Triggers {
		if strings.ToLower(t) == kw {
			return true
		}
	}
	return false
}

// ScoredTool is a tool name paired with a relevance score and the reasoning
// that produced it.
type ScoredTool struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning,omitempty"`
}
