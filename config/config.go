// Package config loads toolmesh settings from files and the environment.
//
// Settings are read with viper from a YAML, TOML or JSON file and from
// TOOLMESH_* environment variables (TOOLMESH_SELECTOR_MAX_TOOLS overrides
// selector.max_tools). Every key has a default that mirrors the component
// defaults, so an empty file yields the same engine as engine.New().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "TOOLMESH"

// Config holds all configuration for a toolmesh process.
type Config struct {
	Engine       EngineConfig       `mapstructure:"engine"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Lexical      LexicalConfig      `mapstructure:"lexical"`
	Semantic     SemanticConfig     `mapstructure:"semantic"`
	Tracker      TrackerConfig      `mapstructure:"tracker"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	Selector     SelectorConfig     `mapstructure:"selector"`
	Decomposer   DecomposerConfig   `mapstructure:"decomposer"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Model        ModelConfig        `mapstructure:"model"`
	Embedder     EmbedderConfig     `mapstructure:"embedder"`
	Logging      LoggingConfig      `mapstructure:"logging"`

	// Catalog is the path of a YAML tool catalog. Relative paths resolve
	// against the directory of the config file.
	Catalog string `mapstructure:"catalog"`
}

// EngineConfig holds request level limits.
type EngineConfig struct {
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" validate:"gte=0"`
	MaxTools              int `mapstructure:"max_tools" validate:"gte=1"`
}

// RegistryConfig holds invocation settings.
type RegistryConfig struct {
	InvokeTimeout time.Duration `mapstructure:"invoke_timeout" validate:"gte=0"`
}

// LexicalConfig holds the keyword scoring constants.
type LexicalConfig struct {
	Base               float64 `mapstructure:"base" validate:"gte=0,lte=1"`
	Increment          float64 `mapstructure:"increment" validate:"gte=0,lte=1"`
	Cap                float64 `mapstructure:"cap" validate:"gte=0,lte=1"`
	DocumentTool       string  `mapstructure:"document_tool"`
	DocumentConfidence float64 `mapstructure:"document_confidence" validate:"gte=0,lte=1"`
}

// SemanticConfig holds the embedding scoring constants.
type SemanticConfig struct {
	Floor          float64       `mapstructure:"floor" validate:"gte=0,lte=1"`
	Boost          float64       `mapstructure:"boost" validate:"gte=0"`
	EmbedTimeout   time.Duration `mapstructure:"embed_timeout" validate:"gte=0"`
	QueryCacheSize int           `mapstructure:"query_cache_size" validate:"gte=0"`
}

// TrackerConfig holds the performance tracker settings.
type TrackerConfig struct {
	Alpha float64       `mapstructure:"alpha" validate:"gt=0,lte=1"`
	Prior float64       `mapstructure:"prior" validate:"gte=0,lte=1"`
	Size  int           `mapstructure:"size" validate:"gte=1"`
	TTL   time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// EmbeddingConfig holds the embedding index settings.
type EmbeddingConfig struct {
	Parallelism int           `mapstructure:"parallelism" validate:"gte=1"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// Weights is a lexical/semantic weight pair.
type Weights struct {
	Lexical  float64 `mapstructure:"lexical" validate:"gte=0,lte=1"`
	Semantic float64 `mapstructure:"semantic" validate:"gte=0,lte=1"`
}

// SelectorConfig holds the ensemble weighting policy and cache settings.
type SelectorConfig struct {
	DefaultWeights      Weights       `mapstructure:"default_weights"`
	LexicalEmptyWeights Weights       `mapstructure:"lexical_empty_weights"`
	AmbiguousWeights    Weights       `mapstructure:"ambiguous_weights"`
	AmbiguityMargin     float64       `mapstructure:"ambiguity_margin" validate:"gte=0"`
	ThresholdFloor      float64       `mapstructure:"threshold_floor" validate:"gte=0,lte=1"`
	ThresholdFactor     float64       `mapstructure:"threshold_factor" validate:"gte=0,lte=1"`
	MaxTools            int           `mapstructure:"max_tools" validate:"gte=1"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	CacheSize           int           `mapstructure:"cache_size" validate:"gte=1"`
}

// DecomposerConfig holds the decomposition bounds.
type DecomposerConfig struct {
	MinSubQuestions  int           `mapstructure:"min_sub_questions" validate:"gte=1"`
	MaxSubQuestions  int           `mapstructure:"max_sub_questions" validate:"gtefield=MinSubQuestions"`
	GenerateTimeout  time.Duration `mapstructure:"generate_timeout" validate:"gte=0"`
	PerStepEstimate  time.Duration `mapstructure:"per_step_estimate" validate:"gte=0"`
	MaxEstimatedTime time.Duration `mapstructure:"max_estimated_time" validate:"gte=0"`
}

// OrchestratorConfig holds the execution settings.
type OrchestratorConfig struct {
	Parallelism      int           `mapstructure:"parallelism" validate:"gte=1"`
	MaxToolsPerStep  int           `mapstructure:"max_tools_per_step" validate:"gte=1"`
	MaxToolCalls     int           `mapstructure:"max_tool_calls" validate:"gte=0"`
	ContextLimit     int           `mapstructure:"context_limit" validate:"gte=0"`
	TemplateLimit    int           `mapstructure:"template_limit" validate:"gte=0"`
	SynthesisTimeout time.Duration `mapstructure:"synthesis_timeout" validate:"gte=0"`
}

// ModelConfig selects the generation provider. Provider "none" runs every
// generation step on its deterministic fallback.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider" validate:"oneof=none openai anthropic"`
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int64   `mapstructure:"max_tokens" validate:"gte=0"`
	APIKey      string  `mapstructure:"api_key"`
}

// EmbedderConfig selects the embedding provider. Provider "none" makes
// selection keyword-only; "hash" uses the offline feature-hashing embedder.
type EmbedderConfig struct {
	Provider   string `mapstructure:"provider" validate:"oneof=none openai hash"`
	Name       string `mapstructure:"name"`
	Dimensions int64  `mapstructure:"dimensions" validate:"gte=0"`
	APIKey     string `mapstructure:"api_key"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format    string `mapstructure:"format" validate:"oneof=json text"`
	AddSource bool   `mapstructure:"add_source"`
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// defaults are static and always decode
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.max_concurrent_requests", 10)
	v.SetDefault("engine.max_tools", 3)

	v.SetDefault("registry.invoke_timeout", 30*time.Second)

	v.SetDefault("lexical.base", 0.7)
	v.SetDefault("lexical.increment", 0.1)
	v.SetDefault("lexical.cap", 0.95)
	v.SetDefault("lexical.document_tool", "document_analysis")
	v.SetDefault("lexical.document_confidence", 0.95)

	v.SetDefault("semantic.floor", 0.3)
	v.SetDefault("semantic.boost", 0.1)
	v.SetDefault("semantic.embed_timeout", 5*time.Second)
	v.SetDefault("semantic.query_cache_size", 256)

	v.SetDefault("tracker.alpha", 0.2)
	v.SetDefault("tracker.prior", 0.5)
	v.SetDefault("tracker.size", 1024)
	v.SetDefault("tracker.ttl", 24*time.Hour)

	v.SetDefault("embedding.parallelism", 4)
	v.SetDefault("embedding.timeout", 10*time.Second)

	v.SetDefault("selector.default_weights.lexical", 0.7)
	v.SetDefault("selector.default_weights.semantic", 0.3)
	v.SetDefault("selector.lexical_empty_weights.lexical", 0.2)
	v.SetDefault("selector.lexical_empty_weights.semantic", 0.8)
	v.SetDefault("selector.ambiguous_weights.lexical", 0.85)
	v.SetDefault("selector.ambiguous_weights.semantic", 0.15)
	v.SetDefault("selector.ambiguity_margin", 0.05)
	v.SetDefault("selector.threshold_floor", 0.3)
	v.SetDefault("selector.threshold_factor", 0.5)
	v.SetDefault("selector.max_tools", 3)
	v.SetDefault("selector.cache_ttl", 5*time.Minute)
	v.SetDefault("selector.cache_size", 1024)

	v.SetDefault("decomposer.min_sub_questions", 3)
	v.SetDefault("decomposer.max_sub_questions", 5)
	v.SetDefault("decomposer.generate_timeout", 15*time.Second)
	v.SetDefault("decomposer.per_step_estimate", 5*time.Second)
	v.SetDefault("decomposer.max_estimated_time", 2*time.Minute)

	v.SetDefault("orchestrator.parallelism", 4)
	v.SetDefault("orchestrator.max_tools_per_step", 2)
	v.SetDefault("orchestrator.max_tool_calls", 0)
	v.SetDefault("orchestrator.context_limit", 500)
	v.SetDefault("orchestrator.template_limit", 400)
	v.SetDefault("orchestrator.synthesis_timeout", 12*time.Second)

	v.SetDefault("model.provider", "none")
	v.SetDefault("model.name", "")
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.max_tokens", 2048)
	v.SetDefault("model.api_key", "")

	v.SetDefault("embedder.provider", "none")
	v.SetDefault("embedder.name", "")
	v.SetDefault("embedder.dimensions", 0)
	v.SetDefault("embedder.api_key", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)

	v.SetDefault("catalog", "")
}

// Load reads configuration with the following precedence (highest first):
//  1. TOOLMESH_* environment variables
//  2. The file at path, or toolmesh.{yaml,toml,json} in the working
//     directory or $XDG_CONFIG_HOME/toolmesh when path is empty
//  3. Built-in defaults
//
// A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("toolmesh")
		v.AddConfigPath(".")
		v.AddConfigPath(userConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Catalog != "" && !filepath.IsAbs(cfg.Catalog) && v.ConfigFileUsed() != "" {
		cfg.Catalog = filepath.Join(filepath.Dir(v.ConfigFileUsed()), cfg.Catalog)
	}
	cfg.Model.APIKey = os.ExpandEnv(cfg.Model.APIKey)
	cfg.Embedder.APIKey = os.ExpandEnv(cfg.Embedder.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and provider names.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "toolmesh")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "toolmesh")
}
