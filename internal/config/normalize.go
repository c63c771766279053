package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLatexmk(); err != nil {
		return err
	}
	c.normalizeBuild()
	c.normalizeDiCy()
	c.normalizeWatch()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBuild() {
	c.Build.Backend = strings.ToLower(strings.TrimSpace(c.Build.Backend))
	if c.Build.Backend == "" {
		c.Build.Backend = defaultBackend
	}
	c.Build.Engine = strings.TrimSpace(c.Build.Engine)
	if c.Build.Engine == "" {
		c.Build.Engine = defaultEngine
	}
	c.Build.OutputFormat = strings.ToLower(strings.TrimSpace(c.Build.OutputFormat))
	if c.Build.OutputFormat == "" {
		c.Build.OutputFormat = defaultOutputFormat
	}
	c.Build.Producer = strings.TrimSpace(c.Build.Producer)
	if len(c.Build.CleanPatterns) == 0 {
		c.Build.CleanPatterns = defaultCleanPatterns()
	}
}

func (c *Config) normalizeLatexmk() error {
	c.Latexmk.Path = strings.TrimSpace(c.Latexmk.Path)
	if c.Latexmk.Path == "" {
		c.Latexmk.Path = defaultLatexmkPath
	}
	c.Latexmk.MinVersion = strings.TrimSpace(c.Latexmk.MinVersion)
	if c.Latexmk.MinVersion == "" {
		c.Latexmk.MinVersion = defaultLatexmkMinimum
	}
	if c.Latexmk.TimeoutSeconds <= 0 {
		c.Latexmk.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Latexmk.LatexmkrcPath != "" {
		expanded, err := expandPath(c.Latexmk.LatexmkrcPath)
		if err != nil {
			return fmt.Errorf("latexmk.latexmkrc_path: %w", err)
		}
		c.Latexmk.LatexmkrcPath = expanded
	}
	return nil
}

func (c *Config) normalizeDiCy() {
	c.DiCy.Path = strings.TrimSpace(c.DiCy.Path)
	if c.DiCy.Path == "" {
		c.DiCy.Path = defaultDiCyPath
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = defaultWatchDebounce
	}
}

func (c *Config) normalizeHistory() {
	if c.History.MaxRows <= 0 {
		c.History.MaxRows = defaultHistoryMaxRows
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
