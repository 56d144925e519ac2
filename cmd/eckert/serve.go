package main

import (
	"context"
	"fmt"
	"io"

	"github.com/eckert-ai/eckert/internal/api"
	"github.com/eckert-ai/eckert/internal/buildinfo"
	"github.com/eckert-ai/eckert/internal/connwatch"
	"github.com/eckert-ai/eckert/internal/llm"
)

// runServe starts the HTTP API and blocks until ctx is cancelled.
// Structured logs go to stdout.
func runServe(ctx context.Context, stdout io.Writer, g globalFlags) error {
	cfg, cfgPath, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(stdout, cfg, false)
	if err != nil {
		return err
	}
	logger.Info("starting eckert", "version", buildinfo.Version, "commit", buildinfo.GitCommit)
	if cfgPath == "" {
		logger.Warn("no config file found, using defaults")
	} else {
		logger.Info("config loaded", "path", cfgPath)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := api.NewServer(cfg.Listen.Addr(), a.sessions, cfg.DefaultSession, logger)
	if p, ok := a.generator.(llm.Pinger); ok {
		w := connwatch.Start(ctx, connwatch.Config{
			Name:   cfg.Models.Provider,
			Probe:  p.Ping,
			Logger: logger,
		})
		defer w.Stop()
		srv.SetGeneratorWatcher(w)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
