// Package selector implements ensemble tool selection: lexical and semantic
// scores are combined with adaptive weights, filtered by an adaptive
// threshold and cached per normalized query.
package selector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/metrics"
	"golang.org/x/sync/errgroup"
)

// Catalog supplies the candidate tools.
type Catalog interface {
	All() []core.ToolMetadata
}

// LexicalScorer scores candidates by trigger matching.
type LexicalScorer interface {
	Score(query string, candidates []core.ToolMetadata) []core.ScoredTool
}

// SemanticScorer scores candidates by embedding similarity. It may fail when
// the embedding service is unavailable.
type SemanticScorer interface {
	Score(ctx context.Context, query string, candidates []core.ToolMetadata) ([]core.ScoredTool, error)
}

// Options tune the ensemble vote.
type Options struct {
	// DefaultWeights apply when both scorers produced candidates.
	DefaultWeights core.Weights
	// LexicalEmptyWeights apply when the lexical scorer found nothing.
	LexicalEmptyWeights core.Weights
	// AmbiguousWeights apply when the top two semantic scores are within
	// AmbiguityMargin of each other.
	AmbiguousWeights core.Weights
	AmbiguityMargin  float64

	// The acceptance threshold is max(ThresholdFloor, top*ThresholdFactor).
	ThresholdFloor  float64
	ThresholdFactor float64

	// MaxTools is used when SelectTools is called with maxTools <= 0.
	MaxTools int

	CacheTTL  time.Duration
	CacheSize int

	Logger  logging.Logger
	Metrics metrics.Recorder
}

// DefaultOptions returns the canonical weighting policy.
func DefaultOptions() Options {
	return Options{
		DefaultWeights:      core.Weights{Lexical: 0.7, Semantic: 0.3},
		LexicalEmptyWeights: core.Weights{Lexical: 0.2, Semantic: 0.8},
		AmbiguousWeights:    core.Weights{Lexical: 0.85, Semantic: 0.15},
		AmbiguityMargin:     0.05,
		ThresholdFloor:      0.3,
		ThresholdFactor:     0.5,
		MaxTools:            3,
		CacheTTL:            5 * time.Minute,
		CacheSize:           1024,
	}
}

// Selector is the ensemble selector. It exclusively owns its cache.
type Selector struct {
	catalog  Catalog
	lexical  LexicalScorer
	semantic SemanticScorer
	cache    *Cache
	opts     Options
	logger   logging.Logger
	metrics  metrics.Recorder
}

// New creates a Selector.
func New(catalog Catalog, lexical LexicalScorer, semantic SemanticScorer, optFns ...func(o *Options)) *Selector {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Selector{
		catalog:  catalog,
		lexical:  lexical,
		semantic: semantic,
		cache:    NewCache(opts.CacheSize, opts.CacheTTL),
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
		metrics:  metrics.OrNoop(opts.Metrics),
	}
}

// Cache returns the selection cache.
func (s *Selector) Cache() *Cache { return s.cache }

// SelectTools picks the tools relevant to query. It never fails because a
// scorer is unavailable: when neither scorer yields candidates the result is
// empty with method no_tools. Only an empty query or an empty catalog is an
// error.
func (s *Selector) SelectTools(ctx context.Context, query string, maxTools int) (*core.Selection, error) {
	if strings.TrimSpace(query) == "" {
		return nil, core.NewError(core.KindInvalidInput, "selector.select", fmt.Errorf("empty query"))
	}
	candidates := s.catalog.All()
	if len(candidates) == 0 {
		return nil, core.NewError(core.KindEmptyRegistry, "selector.select", nil)
	}
	if maxTools <= 0 {
		maxTools = s.opts.MaxTools
	}

	start := time.Now()
	key := CacheKey(query, maxTools)

	if cached, ok := s.cache.Get(key, s.opts.ThresholdFloor); ok {
		s.metrics.ObserveCache(true)
		cached.Method = core.MethodCached
		s.observe(cached, start)
		return cached, nil
	}
	s.metrics.ObserveCache(false)

	var (
		lexScores []core.ScoredTool
		semScores []core.ScoredTool
		semErr    error
		g         errgroup.Group
	)
	g.Go(func() error {
		lexScores = s.lexical.Score(query, candidates)
		return nil
	})
	g.Go(func() error {
		semScores, semErr = s.semantic.Score(ctx, query, candidates)
		return nil
	})
	_ = g.Wait()

	if semErr != nil {
		s.logger.Warn("selector.semantic.unavailable", "error", semErr.Error())
		s.metrics.ObserveUpstreamFailure("semantic.score")
	}

	if len(lexScores) == 0 && len(semScores) == 0 {
		sel := &core.Selection{
			Tools:            []string{},
			ConfidenceScores: map[string]float64{},
			Reasonings:       map[string]string{},
			Method:           core.MethodNoTools,
		}
		s.observe(sel, start)
		return sel, nil
	}

	weights, method := s.weights(lexScores, semScores, semErr)
	sel := s.vote(lexScores, semScores, weights, maxTools)
	sel.Method = method

	s.cache.Put(key, sel)
	s.observe(sel, start)

	return sel.Clone(), nil
}

// weights picks the split for one vote. A failed semantic scorer degrades to
// keyword-only selection.
func (s *Selector) weights(lex, sem []core.ScoredTool, semErr error) (core.Weights, core.SelectionMethod) {
	switch {
	case semErr != nil || len(sem) == 0:
		return core.Weights{Lexical: 1}, core.MethodLexical
	case len(lex) == 0:
		return s.opts.LexicalEmptyWeights, core.MethodSemantic
	case len(sem) >= 2 && math.Abs(sem[0].Score-sem[1].Score) < s.opts.AmbiguityMargin:
		return s.opts.AmbiguousWeights, core.MethodEnsemble
	default:
		return s.opts.DefaultWeights, core.MethodEnsemble
	}
}

// vote unions both score lists, accumulates score*weight per tool and keeps
// the tools at or above the adaptive threshold. The top tool is always kept.
func (s *Selector) vote(lex, sem []core.ScoredTool, w core.Weights, maxTools int) *core.Selection {
	scores := make(map[string]float64)
	reasons := make(map[string][]string)
	var order []string

	add := func(list []core.ScoredTool, weight float64, source string) {
		for _, st := range list {
			if _, seen := scores[st.Name]; !seen {
				order = append(order, st.Name)
			}
			scores[st.Name] += st.Score * weight
			reasons[st.Name] = append(reasons[st.Name], fmt.Sprintf("%s %.2f x %.2f (%s)", source, st.Score, weight, st.Reasoning))
		}
	}
	add(lex, w.Lexical, "lexical")
	add(sem, w.Semantic, "semantic")

	sort.SliceStable(order, func(i, j int) bool {
		if scores[order[i]] != scores[order[j]] {
			return scores[order[i]] > scores[order[j]]
		}
		return order[i] < order[j]
	})

	top := scores[order[0]]
	threshold := math.Max(s.opts.ThresholdFloor, top*s.opts.ThresholdFactor)

	sel := &core.Selection{
		ConfidenceScores: make(map[string]float64),
		Reasonings:       make(map[string]string),
		Weights:          w,
	}
	for _, name := range order {
		if len(sel.Tools) >= maxTools {
			break
		}
		if scores[name] < threshold {
			continue
		}
		sel.Tools = append(sel.Tools, name)
	}
	if len(sel.Tools) == 0 {
		sel.Tools = []string{order[0]}
	}
	for _, name := range sel.Tools {
		sel.ConfidenceScores[name] = scores[name]
		sel.Reasonings[name] = strings.Join(reasons[name], "; ")
	}
	return sel
}

func (s *Selector) observe(sel *core.Selection, start time.Time) {
	dur := time.Since(start)
	s.metrics.ObserveSelection(string(sel.Method), len(sel.Tools), dur)
	logging.LogSelection(s.logger, string(sel.Method), sel.Tools, dur,
		"lexical_weight", sel.Weights.Lexical,
		"semantic_weight", sel.Weights.Semantic,
	)
}
