package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"allenpipe/internal/config"
	"allenpipe/internal/fetch"
	"allenpipe/internal/logging"
	"allenpipe/internal/metrics"
	"allenpipe/internal/projectcache"
)

type commandContext struct {
	configFlag *string
	runID      string
	metrics    *metrics.Recorder

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		runID:      uuid.NewString(),
		metrics:    metrics.New(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger = logger.With(logging.String(logging.FieldRunID, c.runID))
	})
	return c.logger, c.loggerErr
}

// withCache opens the configured metadata source and hands a project cache
// over it to fn. The source is closed when fn returns.
func (c *commandContext) withCache(cmd *cobra.Command, fn func(context.Context, *projectcache.Cache) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	src, err := fetch.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := fetch.CloseSource(src); closeErr != nil {
			logger.Warn("failed to close metadata source", logging.Error(closeErr))
		}
	}()
	return fn(ctx, projectcache.NewFromConfig(cfg, src, logger, c.metrics))
}

// flushMetrics writes the run's metrics when a textfile path is configured.
func (c *commandContext) flushMetrics() error {
	if c.config == nil {
		return nil
	}
	return c.metrics.WriteTextfile(c.config.Metrics.TextfilePath)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
