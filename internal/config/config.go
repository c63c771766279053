package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Build holds the default compilation options. Each field may be overridden
// per document by magic comments and sidecar settings.
type Build struct {
	Backend                     string   `toml:"backend"`
	Engine                      string   `toml:"engine"`
	OutputFormat                string   `toml:"output_format"`
	Producer                    string   `toml:"producer"`
	OutputDirectory             string   `toml:"output_directory"`
	JobNames                    []string `toml:"job_names"`
	EnableShellEscape           bool     `toml:"enable_shell_escape"`
	EnableSynctex               bool     `toml:"enable_synctex"`
	EnableExtendedBuildMode     bool     `toml:"enable_extended_build_mode"`
	CleanPatterns               []string `toml:"clean_patterns"`
	MoveResultToSourceDirectory bool     `toml:"move_result_to_source_directory"`
}

// Latexmk contains settings for the latexmk driver.
type Latexmk struct {
	Path             string `toml:"path"`
	MinVersion       string `toml:"min_version"`
	UseRelativePaths bool   `toml:"use_relative_paths"`
	LatexmkrcPath    string `toml:"latexmkrc_path"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// DiCy contains settings for the alternate monolithic build backend.
type DiCy struct {
	Path             string `toml:"path"`
	ApplyUserOptions bool   `toml:"apply_user_options"`
}

// Viewer selects how finished outputs are opened.
type Viewer struct {
	Name       string `toml:"name"`
	Background bool   `toml:"background"`
}

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Watch contains settings for the save-triggered rebuild loop.
type Watch struct {
	DebounceMS int  `toml:"debounce_ms"`
	OpenResult bool `toml:"open_result"`
}

// History contains settings for the build-record store.
type History struct {
	Enabled bool `toml:"enabled"`
	MaxRows int  `toml:"max_rows"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for texbuild.
//
// Configuration sections by subsystem:
//   - Build: default compilation options (the floor layer of resolution)
//   - Latexmk: driver binary location and invocation tweaks
//   - DiCy: alternate monolithic backend
//   - Viewer: opener selection
//   - Paths: state and log directories
//   - Watch: save-triggered rebuild behavior
//   - History: build-record store
//   - Logging: log format and level
type Config struct {
	Build   Build   `toml:"build"`
	Latexmk Latexmk `toml:"latexmk"`
	DiCy    DiCy    `toml:"dicy"`
	Viewer  Viewer  `toml:"viewer"`
	Paths   Paths   `toml:"paths"`
	Watch   Watch   `toml:"watch"`
	History History `toml:"history"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default config location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/texbuild/config.toml")
}

// Load locates, parses, and validates a configuration file. Missing files are
// not an error; defaults apply. The returned path is the resolved location and
// the boolean reports whether a file was found there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("texbuild.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories texbuild needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
