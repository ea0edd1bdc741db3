// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package config

import (
	"errors"
	"strings"
	"time"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultRefusal is the fixed answer returned when no retrieved passage
// clears the relevance gate. It is deliberately phrased like a normal
// "not found" response rather than an error.
const DefaultRefusal = "I'm sorry, but I don't have enough information to answer that based on the provided knowledge base."

// DefaultPromptTemplate instructs the model to answer strictly from the
// retrieved context. {context} and {question} are substituted at query time.
const DefaultPromptTemplate = `You are a helpful assistant. Your task is to answer the user's question ONLY based on the provided context.
If the context does not contain enough information to answer the question, or if the question is outside the scope of the provided context,
you MUST respond with: "` + DefaultRefusal + `"
DO NOT invent information or use your general knowledge. Focus strictly on the provided context.

Context:
{context}

Question: {question}

Answer:`

// Config is the top-level Grimoire configuration.
type Config struct {
	DataDir    string                    `mapstructure:"data_dir"`
	Chunking   ChunkingConfig            `mapstructure:"chunking"`
	Retrieval  RetrievalConfig           `mapstructure:"retrieval"`
	Prompt     PromptConfig              `mapstructure:"prompt"`
	Embedding  EmbeddingConfig           `mapstructure:"embedding"`
	Generation GenerationConfig          `mapstructure:"generation"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Index      IndexConfig               `mapstructure:"index"`
	Server     ServerConfig              `mapstructure:"server"`
	Eval       EvalConfig                `mapstructure:"eval"`
}

// ChunkingConfig controls how documents are split during ingestion.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// RetrievalConfig controls the nearest-neighbor search and the relevance gate.
// Threshold is the maximum distance at which a passage still counts as
// relevant; its useful range depends on the embedding model and must be
// re-tuned when the model changes.
type RetrievalConfig struct {
	TopK      int     `mapstructure:"top_k"`
	Threshold float64 `mapstructure:"threshold"`
}

// PromptConfig holds the prompt contract and the refusal text.
type PromptConfig struct {
	Template string `mapstructure:"template"`
	Refusal  string `mapstructure:"refusal"`
}

// EmbeddingConfig selects the embedding capability provider.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// GenerationConfig selects the generation capability provider.
type GenerationConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ProviderConfig holds credentials and endpoint for a capability provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// IndexConfig selects the vector index backend and its durable location.
type IndexConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Metric  string `mapstructure:"metric"`
}

// ServerConfig controls the HTTP query surface.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// EvalConfig points at the evaluation dataset and results files.
type EvalConfig struct {
	DataPath    string `mapstructure:"data_path"`
	ResultsPath string `mapstructure:"results_path"`
}

// defaults is the single source of default values, shared by SetDefaults
// and the bootstrap config writer.
func defaults() map[string]any {
	return map[string]any{
		"data_dir":            "data",
		"chunking.size":       500,
		"chunking.overlap":    50,
		"retrieval.top_k":     3,
		"retrieval.threshold": 0.7,
		"prompt.template":     DefaultPromptTemplate,
		"prompt.refusal":      DefaultRefusal,
		"embedding.provider":  "openai",
		"embedding.model":     "text-embedding-3-small",
		"generation.provider": "openai",
		"generation.model":    "gpt-4.1-mini",
		"generation.max_tokens": 512,
		"generation.timeout":  "60s",
		"index.backend":       "flat",
		"index.path":          "data/index",
		"index.metric":        "l2",
		"server.listen":       "127.0.0.1:8321",
		"eval.data_path":      "data/evaluation_data.csv",
		"eval.results_path":   "data/evaluation_results.csv",
	}
}

// SetDefaults applies Grimoire's default configuration values to v.
func SetDefaults(v *viper.Viper) {
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
}

// SetupEnv binds environment variables with prefix GRIMOIRE_ to v.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("GRIMOIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix GRIMOIRE_).
func Load(path string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config from an already-initialised
// Viper instance (used by the CLI, which owns flag/env/file precedence).
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than
// stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateChunking()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validatePrompt()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateIndex()...)

	return errs
}

func (c *Config) validateChunking() []error {
	var errs []error

	if c.Chunking.Size <= 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: chunking.overlap must be non-negative, got %d", c.Chunking.Overlap))
	}
	if c.Chunking.Size > 0 && c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size))
	}

	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.Threshold < 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: retrieval.threshold must be non-negative, got %g", c.Retrieval.Threshold))
	}

	return errs
}

func (c *Config) validatePrompt() []error {
	var errs []error

	if c.Prompt.Refusal == "" {
		errs = append(errs, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"config: prompt.refusal must not be empty"))
	}
	for _, slot := range []string{"{context}", "{question}"} {
		if !strings.Contains(c.Prompt.Template, slot) {
			errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
				"config: prompt.template is missing the %s placeholder", slot))
		}
	}

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Embedding.Provider == "" || c.Embedding.Model == "" {
		errs = append(errs, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"config: embedding.provider and embedding.model are required"))
	}
	if c.Generation.Provider == "" || c.Generation.Model == "" {
		errs = append(errs, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"config: generation.provider and generation.model are required"))
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: generation.timeout must be positive, got %s", c.Generation.Timeout))
	}

	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error

	validBackends := map[string]bool{"flat": true, "sqlitevec": true}
	if !validBackends[c.Index.Backend] {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: index.backend must be one of [flat, sqlitevec], got %q", c.Index.Backend))
	}

	validMetrics := map[string]bool{"l2": true, "cosine": true}
	if !validMetrics[c.Index.Metric] {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: index.metric must be one of [l2, cosine], got %q", c.Index.Metric))
	}

	if c.Index.Path == "" {
		errs = append(errs, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"config: index.path must not be empty"))
	}

	return errs
}
