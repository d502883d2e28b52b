package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"aninamer/internal/config"
	"aninamer/internal/history"
	"aninamer/internal/logging"
	"aninamer/internal/metadata/tmdb"
	"aninamer/internal/monitor"
	"aninamer/internal/notify"
	"aninamer/internal/oracle"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
	})
	return c.config, c.configErr
}

// newLogger builds the process logger. Commands that stream to a terminal
// keep the console format from the config; logToFile adds the run log under
// the configured log directory.
func (c *commandContext) newLogger(logToFile bool) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	paths := []string{"stderr"}
	if logToFile {
		runID := time.Now().UTC().Format("20060102T150405Z")
		paths = append(paths, filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("aninamer-%s.log", runID)))
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: paths,
	})
}

// buildDeps wires the planning pipeline, history store, and notifier for one
// command invocation. The caller must Close the returned history store when
// it is non-nil.
func (c *commandContext) buildDeps(logger *slog.Logger) (monitor.Deps, *history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return monitor.Deps{}, nil, err
	}

	provider, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language)
	if err != nil {
		return monitor.Deps{}, nil, fmt.Errorf("tmdb client: %w", err)
	}

	llm := oracle.NewClient(oracle.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	mapper := oracle.New(llm, cfg.LLM.MaxAttempts, logger)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			return monitor.Deps{}, nil, fmt.Errorf("open history store: %w", err)
		}
	}

	deps := monitor.Deps{
		Cfg:      cfg,
		Pipeline: monitor.NewPlanner(cfg, provider, mapper, logger),
		History:  store,
		Notifier: notify.NewService(cfg),
		Logger:   logger,
	}
	return deps, store, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
