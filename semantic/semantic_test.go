package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/embedding"
	"github.com/hupe1980/toolmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tools = []core.ToolMetadata{
	{Name: "weather", Semantic: "weather forecast temperature rain wind"},
	{Name: "news", Semantic: "news headlines current events articles"},
}

func newScorer(t *testing.T, tracker *PerformanceTracker) (*Scorer, *model.MockEmbedder) {
	t.Helper()
	emb := model.NewMockEmbedder(512)
	ix := embedding.New(emb)
	require.NoError(t, ix.Sync(context.Background(), tools))
	return New(ix, emb, tracker), emb
}

func TestScore_RanksBySimilarity(t *testing.T) {
	s, _ := newScorer(t, nil)

	got, err := s.Score(context.Background(), "weather forecast rain", tools)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "weather", got[0].Name)
	assert.Contains(t, got[0].Reasoning, "semantic similarity")
}

func TestScore_FloorFiltersEverything(t *testing.T) {
	s, _ := newScorer(t, nil)

	got, err := s.Score(context.Background(), "tell me a joke", tools)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScore_SuccessRateBoost(t *testing.T) {
	tracker := NewPerformanceTracker()
	s, _ := newScorer(t, tracker)

	base, err := s.Score(context.Background(), "weather forecast rain", tools)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		tracker.Record("weather", true, time.Millisecond)
	}
	boosted, err := s.Score(context.Background(), "weather forecast rain", tools)
	require.NoError(t, err)
	assert.Greater(t, boosted[0].Score, base[0].Score)
	assert.LessOrEqual(t, boosted[0].Score-base[0].Score, 0.05+1e-9)
}

func TestScore_EmbedFailureIsUpstream(t *testing.T) {
	s, emb := newScorer(t, nil)
	emb.SetError(errors.New("down"))

	_, err := s.Score(context.Background(), "uncached query", tools)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestScore_QueryEmbeddingCached(t *testing.T) {
	s, emb := newScorer(t, nil)
	calls := emb.Calls()

	_, err := s.Score(context.Background(), "Weather forecast", tools)
	require.NoError(t, err)
	_, err = s.Score(context.Background(), "weather   FORECAST", tools)
	require.NoError(t, err)
	assert.Equal(t, calls+1, emb.Calls())
}

func TestPerformanceTracker(t *testing.T) {
	tr := NewPerformanceTracker()
	assert.InDelta(t, 0.5, tr.SuccessRate("unknown"), 1e-9)

	tr.Record("a", true, 10*time.Millisecond)
	assert.InDelta(t, 0.6, tr.SuccessRate("a"), 1e-9)
	tr.Record("a", false, 30*time.Millisecond)
	assert.InDelta(t, 0.48, tr.SuccessRate("a"), 1e-9)

	st, ok := tr.Stats("a")
	require.True(t, ok)
	assert.Equal(t, 2, st.Calls)
	assert.Equal(t, 1, st.Failures)
	assert.InDelta(t, float64(14*time.Millisecond), float64(st.AvgLatency), float64(time.Microsecond))
}
