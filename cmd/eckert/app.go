package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/eckert-ai/eckert/internal/agent"
	"github.com/eckert-ai/eckert/internal/config"
	"github.com/eckert-ai/eckert/internal/llm"
	"github.com/eckert-ai/eckert/internal/memory"
	"github.com/eckert-ai/eckert/internal/prompts"
	"github.com/eckert-ai/eckert/internal/session"
	"github.com/eckert-ai/eckert/internal/skills"
	"github.com/eckert-ai/eckert/internal/tools"
	rootskills "github.com/eckert-ai/eckert/skills"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	store     memory.Store
	generator llm.Generator
	sessions  *session.Controller
	logger    *slog.Logger
}

func (a *app) Close() error {
	return a.store.Close()
}

// openStore opens the configured transcript store, creating its data
// directory if needed.
func openStore(cfg *config.Config) (memory.Store, error) {
	if cfg.Storage.Driver != "memory" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return memory.Open(memory.Options{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		MaxMessages: cfg.Storage.MaxMessages,
		PureGo:      cfg.Storage.PureGo,
	})
}

// newGenerator builds the primary generator followed by any fallbacks.
func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Generator, error) {
	models := append([]config.ModelConfig{cfg.Models.ModelConfig}, cfg.Models.Fallbacks...)
	gens := make([]llm.Generator, 0, len(models))
	for i, m := range models {
		gen, err := llm.New(ctx, llm.ProviderConfig{
			Provider:    m.Provider,
			Model:       m.Model,
			BaseURL:     m.BaseURL,
			APIKey:      m.APIKey,
			Temperature: m.Temp(),
			MaxTokens:   m.MaxTokens,
		}, logger)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("model %s/%s: %w", m.Provider, m.Model, err)
			}
			logger.Warn("skipping fallback model", "provider", m.Provider, "model", m.Model, "error", err)
			continue
		}
		gens = append(gens, gen)
	}
	logger.Info("generator configured",
		"provider", cfg.Models.Provider,
		"model", cfg.Models.Model,
		"fallbacks", len(gens)-1,
	)
	return llm.NewChain(logger, gens...), nil
}

// loadSkills reads skill docs from the configured directory, or the
// bundled defaults when the directory does not exist.
func loadSkills(cfg *config.Config, logger *slog.Logger) ([]skills.Skill, error) {
	loader := skills.NewDirLoader(cfg.SkillsDir)
	if _, err := os.Stat(cfg.SkillsDir); err != nil {
		logger.Debug("skills dir not found, using bundled skills", "dir", cfg.SkillsDir)
		loader = skills.NewLoader(rootskills.Defaults)
	}
	return loader.LoadAll()
}

// newApp wires store, generator, tools, skills, and the loop.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	gen, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := tools.NewRegistry(logger)
	if err := tools.RegisterBuiltins(registry); err != nil {
		_ = store.Close()
		return nil, err
	}

	loaded, err := loadSkills(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	available := make(map[string]bool)
	for _, t := range registry.List() {
		available[t.Name] = true
	}
	active := skills.Applicable(loaded, available)
	logger.Debug("skills loaded", "loaded", len(loaded), "active", len(active))

	system := prompts.NewSystem(cfg.Agent.Role, cfg.Agent.Rules).WithSkills(skills.Texts(active)...)

	loop := agent.New(gen, registry,
		agent.WithSystem(system),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithRetries(cfg.Agent.Retries, cfg.Agent.RetryBackoff),
		agent.WithLogger(logger),
	)

	return &app{
		cfg:       cfg,
		store:     store,
		generator: gen,
		sessions:  session.NewController(store, loop, logger),
		logger:    logger,
	}, nil
}

// openStoreOnly is used by commands that never call the generator.
func openStoreOnly(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		store:    store,
		sessions: session.NewController(store, nil, logger),
		logger:   logger,
	}, nil
}
