package config

import (
	"fmt"
	"strings"
)

var supportedFormats = map[string]struct{}{
	"pdf": {},
	"dvi": {},
	"ps":  {},
}

// Supported build backends.
const (
	BackendLatexmk = "latexmk"
	BackendDiCy    = "dicy"
)

var supportedBackends = map[string]struct{}{
	BackendLatexmk: {},
	BackendDiCy:    {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBuild() error {
	if _, ok := supportedBackends[c.Build.Backend]; !ok {
		return fmt.Errorf("build.backend must be one of latexmk, dicy (got %q)", c.Build.Backend)
	}
	if _, ok := supportedFormats[c.Build.OutputFormat]; !ok {
		return fmt.Errorf("build.output_format must be one of pdf, dvi, ps (got %q)", c.Build.OutputFormat)
	}
	for _, pattern := range c.Build.CleanPatterns {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("build.clean_patterns must not contain empty entries")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
