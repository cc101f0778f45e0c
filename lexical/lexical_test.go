package lexical

import (
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var candidates = []core.ToolMetadata{
	{Name: "clock", Triggers: []string{"time", "clock", "date"}},
	{Name: "weather", Triggers: []string{"weather", "forecast", "temperature", "rain"}},
	{Name: "news", Triggers: []string{"news", "headlines"}},
	{Name: "document_analysis", Triggers: []string{"document", "pdf"}},
}

func TestScore_SingleMatch(t *testing.T) {
	got := New().Score("What TIME is it", candidates)
	require.Len(t, got, 1)
	assert.Equal(t, "clock", got[0].Name)
	assert.InDelta(t, 0.8, got[0].Score, 1e-9)
	assert.Contains(t, got[0].Reasoning, "time")
}

func TestScore_MultipleMatchesCapped(t *testing.T) {
	got := New().Score("weather forecast: temperature and rain tomorrow", candidates)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.95, got[0].Score, 1e-9)
}

func TestScore_SortedDescending(t *testing.T) {
	got := New().Score("news headlines and the weather", candidates)
	require.Len(t, got, 2)
	assert.Equal(t, "news", got[0].Name)
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
	assert.Equal(t, "weather", got[1].Name)
}

func TestScore_NoMatch(t *testing.T) {
	assert.Empty(t, New().Score("tell me a joke", candidates))
	assert.Empty(t, New().Score("   ", candidates))
}

func TestScore_DocumentReferenceRule(t *testing.T) {
	got := New().Score("summarize doc-a1b2c3d4 for me", candidates)
	require.NotEmpty(t, got)
	assert.Equal(t, "document_analysis", got[0].Name)
	assert.InDelta(t, 0.95, got[0].Score, 1e-9)
	assert.Contains(t, got[0].Reasoning, "doc-a1b2c3d4")

	// too short to be an identifier
	got = New().Score("see doc-12", candidates)
	assert.Empty(t, got)
}

func TestScore_CustomOptions(t *testing.T) {
	s := New(func(o *Options) {
		o.Base = 0.5
		o.Increment = 0.2
		o.DocumentTool = ""
	})
	got := s.Score("pdf document doc-abcdef12", candidates)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
}

func TestScore_PhraseTriggersReachCap(t *testing.T) {
	clock := core.ToolMetadata{Name: "clock", Triggers: []string{"time", "what time", "time is it", "clock"}}
	got := New().Score("what time is it", []core.ToolMetadata{clock})
	require.Len(t, got, 1)
	assert.InDelta(t, 0.95, got[0].Score, 1e-9)
}
