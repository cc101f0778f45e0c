// Package lexical scores tools by case-insensitive trigger matching against
// the query text.
package lexical

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hupe1980/toolmesh/core"
)

// Options tune the lexical scorer.
type Options struct {
	// Base is the confidence of a tool with at least one matching trigger
	// before increments.
	Base float64
	// Increment is added per matching trigger.
	Increment float64
	// Cap bounds the confidence.
	Cap float64
	// DocumentTool receives DocumentConfidence whenever the query contains
	// an explicit document reference. Empty disables the rule.
	DocumentTool       string
	DocumentConfidence float64
}

// Scorer is the lexical scorer. It is stateless and safe for concurrent use.
type Scorer struct {
	opts Options
}

// New creates a Scorer.
func New(optFns ...func(o *Options)) *Scorer {
	opts := Options{
		Base:               0.7,
		Increment:          0.1,
		Cap:                0.95,
		DocumentTool:       "document_analysis",
		DocumentConfidence: 0.95,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scorer{opts: opts}
}

// Score returns the candidates with at least one trigger occurring in query,
// ordered by descending confidence then name. A tool scores
// min(Cap, Base + matches*Increment).
func (s *Scorer) Score(query string, candidates []core.ToolMetadata) []core.ScoredTool {
	q := strings.ToLower(query)
	if strings.TrimSpace(q) == "" {
		return nil
	}

	scored := make([]core.ScoredTool, 0, len(candidates))

	docRefs := core.DocumentRefs(query)
	routedDoc := false
	if len(docRefs) > 0 && s.opts.DocumentTool != "" {
		for _, c := range candidates {
			if c.Name == s.opts.DocumentTool {
				scored = append(scored, core.ScoredTool{
					Name:      c.Name,
					Score:     s.opts.DocumentConfidence,
					Reasoning: fmt.Sprintf("document reference %s", strings.Join(docRefs, ", ")),
				})
				routedDoc = true
				break
			}
		}
	}

	for _, c := range candidates {
		if routedDoc && c.Name == s.opts.DocumentTool {
			continue
		}
		matched := matchingTriggers(q, c.Triggers)
		if len(matched) == 0 {
			continue
		}
		conf := math.Min(s.opts.Cap, s.opts.Base+float64(len(matched))*s.opts.Increment)
		scored = append(scored, core.ScoredTool{
			Name:      c.Name,
			Score:     conf,
			Reasoning: fmt.Sprintf("matched triggers: %s", strings.Join(matched, ", ")),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Name < scored[j].Name
	})

	return scored
}

// matchingTriggers returns the distinct triggers contained in q (already
// lower-cased).
func matchingTriggers(q string, triggers []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(triggers))
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if strings.Contains(q, t) {
			out = append(out, t)
		}
	}
	return out
}
