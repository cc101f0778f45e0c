// Package embedding maintains one vector per registered tool, computed from
// the tool's semantic text, and answers cosine-similarity queries over them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/model"
	"golang.org/x/sync/errgroup"
)

// Options configure the index.
type Options struct {
	// Parallelism bounds concurrent embedding calls during Sync.
	Parallelism int
	// Timeout bounds each embedding call.
	Timeout time.Duration
	Logger  logging.Logger
}

type entry struct {
	fingerprint string
	vector      []float64
}

// Index maps tool names to embeddings. Entries are regenerated whenever the
// tool's metadata fingerprint changes.
type Index struct {
	embedder model.Embedder
	opts     Options
	logger   logging.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty index backed by embedder.
func New(embedder model.Embedder, optFns ...func(o *Options)) *Index {
	opts := Options{
		Parallelism: 4,
		Timeout:     10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Index{
		embedder: embedder,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
		entries:  make(map[string]entry),
	}
}

// Sync brings the index in line with tools: new or changed tools are
// embedded, removed tools are dropped. Tools whose embedding fails keep no
// entry and are reported in the returned upstream error; every successful
// embedding is kept.
func (ix *Index) Sync(ctx context.Context, tools []core.ToolMetadata) error {
	wanted := make(map[string]core.ToolMetadata, len(tools))
	for _, t := range tools {
		wanted[t.Name] = t
	}

	ix.mu.Lock()
	for name := range ix.entries {
		if _, ok := wanted[name]; !ok {
			delete(ix.entries, name)
		}
	}
	var stale []core.ToolMetadata
	for _, t := range tools {
		if e, ok := ix.entries[t.Name]; !ok || e.fingerprint != t.Fingerprint() {
			stale = append(stale, t)
		}
	}
	ix.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}

	var (
		g     errgroup.Group
		errMu sync.Mutex
		errs  []error
	)
	g.SetLimit(ix.opts.Parallelism)

	for _, t := range stale {
		g.Go(func() error {
			vec, err := ix.embed(ctx, t.SemanticText())
			if err != nil {
				ix.mu.Lock()
				delete(ix.entries, t.Name)
				ix.mu.Unlock()

				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
				errMu.Unlock()
				return nil
			}
			ix.mu.Lock()
			ix.entries[t.Name] = entry{fingerprint: t.Fingerprint(), vector: vec}
			ix.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	ix.logger.Debug("embedding.index.synced", "embedded", len(stale)-len(errs), "failed", len(errs), "total", ix.Len())

	if len(errs) > 0 {
		return core.Upstream("embedding.sync", errors.Join(errs...))
	}
	return nil
}

func (ix *Index) embed(ctx context.Context, text string) ([]float64, error) {
	if ix.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.opts.Timeout)
		defer cancel()
	}
	return ix.embedder.Embed(ctx, text)
}

// Vector returns a copy of the stored embedding for name.
func (ix *Index) Vector(name string) ([]float64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), e.vector...), true
}

// Len returns the number of embedded tools.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Similar ranks the named tools (all tools when names is nil) by cosine
// similarity to vec, dropping results below floor.
func (ix *Index) Similar(vec []float64, names []string, floor float64) []core.ScoredTool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if names == nil {
		for n := range ix.entries {
			names = append(names, n)
		}
	}

	out := make([]core.ScoredTool, 0, len(names))
	for _, n := range names {
		e, ok := ix.entries[n]
		if !ok {
			continue
		}
		sim := Cosine(vec, e.vector)
		if sim < floor {
			continue
		}
		out = append(out, core.ScoredTool{Name: n, Score: sim})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Cosine returns the cosine similarity of a and b, 0 for mismatched or zero
// vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
