// Package semantic ranks tools by embedding similarity to the query, nudged
// by each tool's historical success rate.
package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/embedding"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/model"
)

// Options tune the semantic scorer.
type Options struct {
	// Floor drops candidates whose raw similarity is below it.
	Floor float64
	// Boost scales the success-rate adjustment boost*(rate-0.5).
	Boost float64
	// EmbedTimeout bounds the query embedding call.
	EmbedTimeout time.Duration
	// QueryCacheSize bounds the query embedding cache; 0 disables it.
	QueryCacheSize int
	Logger         logging.Logger
}

// Scorer embeds the query and ranks candidates against the embedding index.
type Scorer struct {
	index    *embedding.Index
	embedder model.Embedder
	tracker  *PerformanceTracker
	queries  *lru.Cache[string, []float64]
	opts     Options
	logger   logging.Logger
}

// New creates a Scorer. A nil tracker disables the success-rate boost.
func New(index *embedding.Index, embedder model.Embedder, tracker *PerformanceTracker, optFns ...func(o *Options)) *Scorer {
	opts := Options{
		Floor:          0.3,
		Boost:          0.1,
		EmbedTimeout:   5 * time.Second,
		QueryCacheSize: 256,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Scorer{
		index:    index,
		embedder: embedder,
		tracker:  tracker,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
	if opts.QueryCacheSize > 0 {
		// only fails for a non-positive size
		s.queries, _ = lru.New[string, []float64](opts.QueryCacheSize)
	}
	return s
}

// Score ranks candidates. Embedding failures are returned as upstream
// errors so the caller can degrade to lexical-only selection.
func (s *Scorer) Score(ctx context.Context, query string, candidates []core.ToolMetadata) ([]core.ScoredTool, error) {
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, core.Upstream("semantic.embed", err)
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}

	similar := s.index.Similar(vec, names, s.opts.Floor)
	for i := range similar {
		sim := similar[i].Score
		rate := 0.5
		if s.tracker != nil {
			rate = s.tracker.SuccessRate(similar[i].Name)
		}
		similar[i].Score = clamp01(sim + s.opts.Boost*(rate-0.5))
		similar[i].Reasoning = fmt.Sprintf("semantic similarity %.2f, success rate %.2f", sim, rate)
	}

	sort.SliceStable(similar, func(i, j int) bool {
		if similar[i].Score != similar[j].Score {
			return similar[i].Score > similar[j].Score
		}
		return similar[i].Name < similar[j].Name
	})

	return similar, nil
}

func (s *Scorer) embedQuery(ctx context.Context, query string) ([]float64, error) {
	key := util.NormalizeQuery(query)
	if s.queries != nil {
		if v, ok := s.queries.Get(key); ok {
			return v, nil
		}
	}

	if s.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EmbedTimeout)
		defer cancel()
	}
	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("semantic.embed.failed", "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	if s.queries != nil {
		s.queries.Add(key, vec)
	}
	return vec, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
