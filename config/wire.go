package config

import (
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	sdkopenai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/decompose"
	"github.com/hupe1980/toolmesh/embedding"
	"github.com/hupe1980/toolmesh/engine"
	"github.com/hupe1980/toolmesh/lexical"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/model/anthropic"
	"github.com/hupe1980/toolmesh/model/openai"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/registry"
	"github.com/hupe1980/toolmesh/selector"
	"github.com/hupe1980/toolmesh/semantic"
)

// EngineOptions returns an engine option applying every tunable in c. The
// model, embedder and logger are left untouched; see NewModel, NewEmbedder
// and NewLogger.
func (c *Config) EngineOptions() func(o *engine.Options) {
	return func(o *engine.Options) {
		o.Config = engine.Config{
			MaxConcurrentRequests: c.Engine.MaxConcurrentRequests,
			MaxTools:              c.Engine.MaxTools,
		}
		o.RegistryOptions = append(o.RegistryOptions, func(ro *registry.Options) {
			ro.InvokeTimeout = c.Registry.InvokeTimeout
		})
		o.LexicalOptions = append(o.LexicalOptions, func(lo *lexical.Options) {
			lo.Base = c.Lexical.Base
			lo.Increment = c.Lexical.Increment
			lo.Cap = c.Lexical.Cap
			lo.DocumentTool = c.Lexical.DocumentTool
			lo.DocumentConfidence = c.Lexical.DocumentConfidence
		})
		o.SemanticOptions = append(o.SemanticOptions, func(so *semantic.Options) {
			so.Floor = c.Semantic.Floor
			so.Boost = c.Semantic.Boost
			so.EmbedTimeout = c.Semantic.EmbedTimeout
			so.QueryCacheSize = c.Semantic.QueryCacheSize
		})
		o.TrackerOptions = append(o.TrackerOptions, func(to *semantic.TrackerOptions) {
			to.Alpha = c.Tracker.Alpha
			to.Prior = c.Tracker.Prior
			to.Size = c.Tracker.Size
			to.TTL = c.Tracker.TTL
		})
		o.IndexOptions = append(o.IndexOptions, func(io *embedding.Options) {
			io.Parallelism = c.Embedding.Parallelism
			io.Timeout = c.Embedding.Timeout
		})
		o.SelectorOptions = append(o.SelectorOptions, func(so *selector.Options) {
			so.DefaultWeights = c.Selector.DefaultWeights.core()
			so.LexicalEmptyWeights = c.Selector.LexicalEmptyWeights.core()
			so.AmbiguousWeights = c.Selector.AmbiguousWeights.core()
			so.AmbiguityMargin = c.Selector.AmbiguityMargin
			so.ThresholdFloor = c.Selector.ThresholdFloor
			so.ThresholdFactor = c.Selector.ThresholdFactor
			so.MaxTools = c.Selector.MaxTools
			so.CacheTTL = c.Selector.CacheTTL
			so.CacheSize = c.Selector.CacheSize
		})
		o.DecomposerOptions = append(o.DecomposerOptions, func(do *decompose.Options) {
			do.MinSubQuestions = c.Decomposer.MinSubQuestions
			do.MaxSubQuestions = c.Decomposer.MaxSubQuestions
			do.GenerateTimeout = c.Decomposer.GenerateTimeout
			do.PerStepEstimate = c.Decomposer.PerStepEstimate
			do.MaxEstimatedTime = c.Decomposer.MaxEstimatedTime
		})
		o.OrchestratorOptions = append(o.OrchestratorOptions, func(oo *orchestrator.Options) {
			oo.Parallelism = c.Orchestrator.Parallelism
			oo.MaxToolsPerStep = c.Orchestrator.MaxToolsPerStep
			oo.MaxToolCalls = c.Orchestrator.MaxToolCalls
			oo.ContextLimit = c.Orchestrator.ContextLimit
			oo.TemplateLimit = c.Orchestrator.TemplateLimit
			oo.SynthesisTimeout = c.Orchestrator.SynthesisTimeout
		})
	}
}

func (w Weights) core() core.Weights {
	return core.Weights{Lexical: w.Lexical, Semantic: w.Semantic}
}

// NewModel builds the configured generation provider, or nil for "none".
func (c *Config) NewModel() model.Model {
	mc := c.Model
	switch mc.Provider {
	case "openai":
		var opts []option.RequestOption
		if mc.APIKey != "" {
			opts = append(opts, option.WithAPIKey(mc.APIKey))
		}
		client := sdkopenai.NewClient(opts...)
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = mc.Temperature
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = mc.MaxTokens
			}
		})
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = sdkanthropic.Model(mc.Name)
			}
			o.Temperature = mc.Temperature
			if mc.MaxTokens > 0 {
				o.MaxTokens = mc.MaxTokens
			}
			o.APIKey = mc.APIKey
		})
	default:
		return nil
	}
}

// NewEmbedder builds the configured embedding provider, or nil for "none".
func (c *Config) NewEmbedder() model.Embedder {
	ec := c.Embedder
	switch ec.Provider {
	case "openai":
		var opts []option.RequestOption
		if ec.APIKey != "" {
			opts = append(opts, option.WithAPIKey(ec.APIKey))
		}
		client := sdkopenai.NewClient(opts...)
		return openai.NewEmbedderFromClient(&client, func(o *openai.EmbedderOptions) {
			if ec.Name != "" {
				o.Model = ec.Name
			}
			o.Dimensions = ec.Dimensions
		})
	case "hash":
		return model.NewMockEmbedder(int(ec.Dimensions))
	default:
		return nil
	}
}

// NewLogger builds a MeshLogger writing to stderr.
func (c *Config) NewLogger() *logging.MeshLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(c.Logging.Level),
		Format:    c.Logging.Format,
		Output:    os.Stderr,
		AddSource: c.Logging.AddSource,
		Component: "toolmesh",
	})
}
