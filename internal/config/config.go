// Package config provides configuration loading for guidanced.
//
// Precedence (highest to lowest): environment variables with the
// GUIDANCED_ prefix, then an optional YAML file, then built-in
// defaults.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/veridianlabs/guidanced/internal/compliance"
	"github.com/veridianlabs/guidanced/internal/logging"
)

const envPrefix = "GUIDANCED_"

// defaultYAML is the built-in configuration layer. Every key can be
// overridden by file or environment.
const defaultYAML = `
server:
  http_port: 8420
  shutdown_timeout: 10s
logging:
  level: info
  format: json
store:
  backend: memory
  path: ""
  compress: true
embeddings:
  base_url: http://localhost:8080/v1
  model: BAAI/bge-small-en-v1.5
llm:
  model: claude-sonnet-4-20250514
  timeout: 60s
  max_tokens: 1024
scoring:
  recency_weight: 0.2
  importance_weight: 0.3
  relevance_weight: 0.5
  decay_rate: 0.995
retrieval:
  limit: 5
  source_timeout: 2s
compliance:
  mode: production
  judges: 3
  judge_timeout: 10s
  training_threshold: 0.6
  production_threshold: 0.9
learning:
  success_threshold: 7.0
  learning_rate: 0.1
`

// Config is the full daemon configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	LLM        LLMConfig        `koanf:"llm"`
	Scoring    ScoringConfig    `koanf:"scoring"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Compliance ComplianceConfig `koanf:"compliance"`
	Learning   LearningConfig   `koanf:"learning"`
}

// ServerConfig configures the HTTP surface (health and metrics).
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is "memory" or "chromem".
	Backend string `koanf:"backend"`

	// Path is the chromem persistence directory; empty keeps the
	// database in memory.
	Path string `koanf:"path"`

	// Compress enables gzip for persisted chromem documents.
	Compress bool `koanf:"compress"`
}

// EmbeddingsConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// LLMConfig configures the completion client used by the learning
// pipeline and the judge panel.
type LLMConfig struct {
	APIKey    string        `koanf:"api_key"`
	Model     string        `koanf:"model"`
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	MaxTokens int           `koanf:"max_tokens"`
}

// ScoringConfig holds the memory stream's composite score parameters.
type ScoringConfig struct {
	RecencyWeight    float64 `koanf:"recency_weight"`
	ImportanceWeight float64 `koanf:"importance_weight"`
	RelevanceWeight  float64 `koanf:"relevance_weight"`
	DecayRate        float64 `koanf:"decay_rate"`
}

// RetrievalConfig configures the orchestrator.
type RetrievalConfig struct {
	Limit         int           `koanf:"limit"`
	SourceTimeout time.Duration `koanf:"source_timeout"`
}

// ComplianceConfig configures the validator.
type ComplianceConfig struct {
	Mode                string        `koanf:"mode"`
	Judges              int           `koanf:"judges"`
	JudgeTimeout        time.Duration `koanf:"judge_timeout"`
	TrainingThreshold   float64       `koanf:"training_threshold"`
	ProductionThreshold float64       `koanf:"production_threshold"`
}

// LearningConfig configures the outcome pipeline.
type LearningConfig struct {
	SuccessThreshold float64 `koanf:"success_threshold"`
	LearningRate     float64 `koanf:"learning_rate"`
}

// Load builds configuration from defaults, an optional YAML file, and
// GUIDANCED_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaultYAML)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	// GUIDANCED_SCORING_DECAY_RATE -> scoring.decay_rate: the first
	// underscore after the prefix splits section from field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate fails fast on configuration the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.http_port %d outside 1-65535", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory", "chromem":
	default:
		return fmt.Errorf("store.backend must be memory or chromem, got %q", c.Store.Backend)
	}

	sum := c.Scoring.RecencyWeight + c.Scoring.ImportanceWeight + c.Scoring.RelevanceWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", sum)
	}
	if c.Scoring.DecayRate <= 0 || c.Scoring.DecayRate >= 1 {
		return fmt.Errorf("scoring.decay_rate must be in (0, 1), got %v", c.Scoring.DecayRate)
	}

	if c.Retrieval.Limit < 1 {
		return fmt.Errorf("retrieval.limit must be positive, got %d", c.Retrieval.Limit)
	}

	switch compliance.Mode(c.Compliance.Mode) {
	case compliance.ModeTraining, compliance.ModeProduction:
	default:
		return fmt.Errorf("compliance.mode must be training or production, got %q", c.Compliance.Mode)
	}
	if c.Compliance.Judges < 2 {
		return fmt.Errorf("compliance.judges must be at least 2, got %d", c.Compliance.Judges)
	}
	for name, threshold := range map[string]float64{
		"compliance.training_threshold":   c.Compliance.TrainingThreshold,
		"compliance.production_threshold": c.Compliance.ProductionThreshold,
	} {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, threshold)
		}
	}

	if c.Learning.SuccessThreshold < 0 || c.Learning.SuccessThreshold > 10 {
		return fmt.Errorf("learning.success_threshold must be in [0, 10], got %v", c.Learning.SuccessThreshold)
	}
	if c.Learning.LearningRate <= 0 || c.Learning.LearningRate >= 1 {
		return fmt.Errorf("learning.learning_rate must be in (0, 1), got %v", c.Learning.LearningRate)
	}
	return nil
}
