package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/engine"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_MirrorsComponentDefaults(t *testing.T) {
	cfg := Default()

	sel := selector.DefaultOptions()
	assert.Equal(t, sel.DefaultWeights, cfg.Selector.DefaultWeights.core())
	assert.Equal(t, sel.LexicalEmptyWeights, cfg.Selector.LexicalEmptyWeights.core())
	assert.Equal(t, sel.AmbiguousWeights, cfg.Selector.AmbiguousWeights.core())
	assert.Equal(t, sel.ThresholdFloor, cfg.Selector.ThresholdFloor)
	assert.Equal(t, sel.CacheTTL, cfg.Selector.CacheTTL)

	assert.Equal(t, engine.DefaultConfig.MaxTools, cfg.Engine.MaxTools)
	assert.Equal(t, engine.DefaultConfig.MaxConcurrentRequests, cfg.Engine.MaxConcurrentRequests)
	assert.Equal(t, 12*time.Second, cfg.Orchestrator.SynthesisTimeout)
	assert.Equal(t, "none", cfg.Model.Provider)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "toolmesh.yaml", `
selector:
  max_tools: 5
  cache_ttl: 30s
  default_weights:
    lexical: 0.6
    semantic: 0.4
orchestrator:
  max_tool_calls: 8
model:
  provider: anthropic
  name: claude-sonnet-4-5
logging:
  level: debug
  format: text
catalog: tools.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Selector.MaxTools)
	assert.Equal(t, 30*time.Second, cfg.Selector.CacheTTL)
	assert.Equal(t, core.Weights{Lexical: 0.6, Semantic: 0.4}, cfg.Selector.DefaultWeights.core())
	assert.Equal(t, 0.8, cfg.Selector.LexicalEmptyWeights.Semantic)
	assert.Equal(t, 8, cfg.Orchestrator.MaxToolCalls)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "tools.yaml"), cfg.Catalog)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "toolmesh.toml", `
[decomposer]
min_sub_questions = 2
max_sub_questions = 4

[embedder]
provider = "hash"
dimensions = 128
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Decomposer.MinSubQuestions)
	assert.Equal(t, 4, cfg.Decomposer.MaxSubQuestions)
	assert.Equal(t, int64(128), cfg.Embedder.Dimensions)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "toolmesh.json", `{"selector": {"max_tools": 4}}`)
	t.Setenv("TOOLMESH_SELECTOR_MAX_TOOLS", "6")
	t.Setenv("TOOLMESH_ENGINE_MAX_CONCURRENT_REQUESTS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Selector.MaxTools)
	assert.Equal(t, 2, cfg.Engine.MaxConcurrentRequests)
}

func TestLoad_ExpandsAPIKey(t *testing.T) {
	path := writeFile(t, "toolmesh.yaml", "model:\n  provider: openai\n  api_key: ${TEST_TOOLMESH_KEY}\n")
	t.Setenv("TEST_TOOLMESH_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "reading config")
	})

	t.Run("unknown provider", func(t *testing.T) {
		path := writeFile(t, "toolmesh.yaml", "model:\n  provider: llama\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "invalid config")
	})

	t.Run("inverted sub-question bounds", func(t *testing.T) {
		path := writeFile(t, "toolmesh.yaml", "decomposer:\n  min_sub_questions: 4\n  max_sub_questions: 2\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "MaxSubQuestions")
	})
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEngineOptions(t *testing.T) {
	cfg := Default()
	cfg.Engine.MaxTools = 2
	cfg.Orchestrator.MaxToolCalls = 3
	cfg.Selector.ThresholdFloor = 0.4

	var opts engine.Options
	cfg.EngineOptions()(&opts)

	assert.Equal(t, engine.Config{MaxConcurrentRequests: 10, MaxTools: 2}, opts.Config)

	var so selector.Options
	for _, fn := range opts.SelectorOptions {
		fn(&so)
	}
	assert.Equal(t, 0.4, so.ThresholdFloor)

	var oo orchestrator.Options
	for _, fn := range opts.OrchestratorOptions {
		fn(&oo)
	}
	assert.Equal(t, 3, oo.MaxToolCalls)
	assert.Equal(t, 2, oo.MaxToolsPerStep)
}

func TestProviders(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.NewModel())
	assert.Nil(t, cfg.NewEmbedder())

	cfg.Embedder.Provider = "hash"
	cfg.Embedder.Dimensions = 64
	emb, ok := cfg.NewEmbedder().(*model.MockEmbedder)
	require.True(t, ok)
	assert.Equal(t, 64, emb.Dim)

	cfg.Model.Provider = "anthropic"
	cfg.Model.APIKey = "test"
	assert.Equal(t, "anthropic", cfg.NewModel().Info().Provider)

	cfg.Model.Provider = "openai"
	cfg.Model.Name = "gpt-4o"
	assert.Equal(t, "gpt-4o", cfg.NewModel().Info().Name)
}

func TestEngineFromConfig(t *testing.T) {
	cfg := Default()
	cfg.Embedder.Provider = "hash"

	e := engine.New(cfg.EngineOptions(), func(o *engine.Options) {
		o.Embedder = cfg.NewEmbedder()
		o.Logger = cfg.NewLogger()
	})
	_, err := e.SelectTools(t.Context(), "anything", 0)
	assert.ErrorIs(t, err, core.ErrEmptyRegistry)
}
