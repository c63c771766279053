package main

import (
	"log/slog"
	"strings"
	"sync"

	"texbuild/internal/builder"
	"texbuild/internal/composer"
	"texbuild/internal/config"
	"texbuild/internal/history"
	"texbuild/internal/logging"
	"texbuild/internal/opener"
	"texbuild/internal/sink"
)

// commandContext lazily wires the shared pieces the subcommands need:
// configuration, the logger, the composer, and the history store. Everything
// is constructed at most once per process.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	composerOnce sync.Once
	comp         *composer.Composer
	store        *history.Store
	composerErr  error
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
		cfg, _, _, err := config.Load(path)
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

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) ensureComposer() (*composer.Composer, error) {
	c.composerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.composerErr = err
			return
		}
		logger, err := c.ensureLogger()
		if err != nil {
			c.composerErr = err
			return
		}

		registry := builder.NewRegistry(builder.NewLatexmk(cfg.Latexmk, logger))
		openers := opener.NewRegistry(cfg.Viewer,
			opener.NewZathura(),
			opener.NewSystem(cfg.Viewer.Background),
		)

		if cfg.History.Enabled {
			store, err := history.Open(cfg)
			if err != nil {
				logger.Warn("build history unavailable", logging.Error(err))
			} else {
				c.store = store
			}
		}

		c.comp = composer.New(cfg, logger, registry, openers, sink.NewLoggerSink(logger), c.store)
	})
	return c.comp, c.composerErr
}

// ensureHistory returns the history store, opening it on demand for commands
// that read records without building.
func (c *commandContext) ensureHistory() (*history.Store, error) {
	if _, err := c.ensureComposer(); err != nil {
		return nil, err
	}
	return c.store, nil
}
