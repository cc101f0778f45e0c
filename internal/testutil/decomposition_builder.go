package testutil

import "github.com/hupe1980/toolmesh/core"

// DecompositionBuilder provides a fluent helper for constructing query
// decompositions in tests.
// Example:
//
//	dec := NewDecompositionBuilder("weather and news").
//	    Step("1", "What is the weather?", "weather").
//	    Step("2", "What is in the news?", "news").
//	    Build()
//
// Steps execute in the order they are added unless Order is called.
type DecompositionBuilder struct {
	query string
	subs  []core.SubQuestion
	order []string
}

// NewDecompositionBuilder creates a builder for query.
func NewDecompositionBuilder(query string) *DecompositionBuilder {
	return &DecompositionBuilder{query: query}
}

// Step appends a research sub-question using tools (chainable).
func (b *DecompositionBuilder) Step(id, question string, tools ...string) *DecompositionBuilder {
	b.subs = append(b.subs, core.SubQuestion{
		ID:            id,
		Question:      question,
		Type:          core.TypeResearch,
		Priority:      3,
		Dependencies:  []string{},
		ExpectedTools: tools,
		Confidence:    0.7,
	})
	return b
}

// DependsOn adds dependencies to the most recently added step (chainable).
func (b *DecompositionBuilder) DependsOn(ids ...string) *DecompositionBuilder {
	if len(b.subs) > 0 {
		last := &b.subs[len(b.subs)-1]
		last.Dependencies = append(last.Dependencies, ids...)
	}
	return b
}

// Order overrides the execution order (chainable).
func (b *DecompositionBuilder) Order(ids ...string) *DecompositionBuilder {
	b.order = ids
	return b
}

// Build returns the decomposition.
func (b *DecompositionBuilder) Build() *core.QueryDecomposition {
	order := b.order
	if order == nil {
		for _, s := range b.subs {
			order = append(order, s.ID)
		}
	}
	return &core.QueryDecomposition{
		OriginalQuery:  b.query,
		Intent:         core.IntentResearch,
		SubQuestions:   b.subs,
		ExecutionOrder: order,
		Complexity:     core.ComplexityLow,
		Method:         core.DecompositionFallback,
	}
}
