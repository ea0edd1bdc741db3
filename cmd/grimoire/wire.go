// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/grimoire-dev/grimoire/internal/assistant"
	"github.com/grimoire-dev/grimoire/internal/chunker"
	"github.com/grimoire-dev/grimoire/internal/composer"
	"github.com/grimoire-dev/grimoire/internal/config"
	"github.com/grimoire-dev/grimoire/internal/document"
	"github.com/grimoire-dev/grimoire/internal/index"
	_ "github.com/grimoire-dev/grimoire/internal/index/flat"      // register flat backend
	_ "github.com/grimoire-dev/grimoire/internal/index/sqlitevec" // register sqlitevec backend
	"github.com/grimoire-dev/grimoire/internal/ingest"
	"github.com/grimoire-dev/grimoire/internal/provider"
	_ "github.com/grimoire-dev/grimoire/internal/provider/anthropic" // register anthropic provider
	_ "github.com/grimoire-dev/grimoire/internal/provider/google"    // register google provider
	_ "github.com/grimoire-dev/grimoire/internal/provider/openai"    // register openai provider
	"github.com/grimoire-dev/grimoire/internal/retriever"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// App holds the wired assistant and the configuration it came from.
type App struct {
	Config    *config.Config
	Assistant *assistant.Assistant
	Log       *slog.Logger
}

// loadConfig resolves the final configuration from the global Viper
// (flags, env, file, defaults — in that precedence).
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// setupLogging installs the process-wide logger. Verbose enables debug
// level.
func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}

// wireApp creates all subsystems and wires them together.
func wireApp(cfg *config.Config, log *slog.Logger) (*App, error) {
	embCreds := cfg.Providers[cfg.Embedding.Provider]
	embedder, err := provider.NewEmbedder(cfg.Embedding.Provider, provider.Config{
		APIKey:  embCreds.APIKey,
		BaseURL: embCreds.Endpoint,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeCLISetupFailure,
			"creating embedding provider %s", cfg.Embedding.Provider)
	}

	genCreds := cfg.Providers[cfg.Generation.Provider]
	generator, err := provider.NewGenerator(cfg.Generation.Provider, provider.Config{
		APIKey:    genCreds.APIKey,
		BaseURL:   genCreds.Endpoint,
		Model:     cfg.Generation.Model,
		MaxTokens: cfg.Generation.MaxTokens,
	})
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeCLISetupFailure,
			"creating generation provider %s", cfg.Generation.Provider)
	}

	backend, err := index.NewBackend(index.Config{
		Backend: cfg.Index.Backend,
		Path:    cfg.Index.Path,
		Metric:  cfg.Index.Metric,
	})
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeCLISetupFailure,
			"creating index backend %s", cfg.Index.Backend)
	}

	split, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	ret, err := retriever.New(cfg.Retrieval.TopK, cfg.Retrieval.Threshold)
	if err != nil {
		return nil, err
	}

	comp, err := composer.New(generator, composer.Config{
		Template: cfg.Prompt.Template,
		Refusal:  cfg.Prompt.Refusal,
		Timeout:  cfg.Generation.Timeout,
	})
	if err != nil {
		return nil, err
	}

	pipeline := ingest.New(document.NewLoader(log), split, embedder, backend, log)

	return &App{
		Config:    cfg,
		Assistant: assistant.New(embedder, ret, comp, pipeline, backend, log),
		Log:       log,
	}, nil
}

// setup is the shared entry point for subcommands: config, logging,
// wiring.
func setup() (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := setupLogging()
	return wireApp(cfg, log)
}
