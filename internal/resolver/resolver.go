// Package resolver produces a fully-populated BuildState by layering the
// three configuration sources in increasing precedence: global config
// defaults, magic comments scanned from the document's root chain, and the
// sidecar settings file. Each layer overrides field-by-field; a source that
// does not mention an option leaves the prior value in place.
package resolver

import (
	"log/slog"
	"strings"

	"texbuild/internal/config"
	"texbuild/internal/logging"
	"texbuild/internal/magic"
	"texbuild/internal/sidecar"
	"texbuild/internal/state"
)

// Resolver layers configuration sources into BuildStates.
type Resolver struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs a Resolver.
func New(cfg *config.Config, logger *slog.Logger) *Resolver {
	return &Resolver{cfg: cfg, logger: logging.NewComponentLogger(logger, "resolver")}
}

// Resolve builds the BuildState for the document at path. Root resolution
// follows magic root pointers transitively; every document visited on the way
// is recorded as a subfile of the final root. Layers are read fresh on every
// call so live edits are honored.
func (r *Resolver) Resolve(path string) (*state.BuildState, error) {
	scan := magic.Scan(path)

	s := state.New(scan.RootPath)
	for _, visited := range scan.Visited {
		s.AddSubfile(visited)
	}

	r.applyDefaults(s)
	applyProperties(s, scan.Directives)

	settings, sidecarPath, err := sidecar.Load(scan.RootPath)
	if err != nil {
		return nil, err
	}
	if sidecarPath != "" {
		r.logger.Debug("sidecar settings applied",
			logging.String("path", sidecarPath),
			logging.Int("keys", len(settings)))
	}
	applyProperties(s, map[string]string(settings))

	return s, nil
}

func (r *Resolver) applyDefaults(s *state.BuildState) {
	build := r.cfg.Build
	s.Engine = build.Engine
	s.OutputFormat = build.OutputFormat
	s.Producer = build.Producer
	s.OutputDirectory = build.OutputDirectory
	s.EnableShellEscape = build.EnableShellEscape
	s.EnableSynctex = build.EnableSynctex
	s.EnableExtendedBuildMode = build.EnableExtendedBuildMode
	s.CleanPatterns = append([]string(nil), build.CleanPatterns...)
	s.MoveResultToSourceDirectory = build.MoveResultToSourceDirectory
	if len(build.JobNames) > 0 {
		s.SetJobNames(build.JobNames)
	}
}

// Alias chains per option, highest priority first. The same chains serve the
// magic-comment and sidecar layers; first non-empty key wins within a layer.
var (
	engineAliases    = []string{"customEngine", "engine", "program"}
	jobNameAliases   = []string{"jobNames", "jobnames", "jobname"}
	formatAliases    = []string{"outputFormat", "format"}
	outputDirAliases = []string{"outputDirectory", "output_directory"}
	producerAliases  = []string{"producer"}
	cleanAliases     = []string{"cleanPatterns", "clean_patterns"}

	shellEscapeAliases  = []string{"enableShellEscape", "enable_shell_escape"}
	synctexAliases      = []string{"enableSynctex", "enable_synctex"}
	extendedModeAliases = []string{"enableExtendedBuildMode", "enable_extended_build_mode"}
	moveResultAliases   = []string{"moveResultToSourceDirectory", "move_result_to_source_directory"}
)

// applyProperties overlays one property-bag layer onto the state. Only
// recognized keys change anything; unknown keys are ignored silently.
func applyProperties(s *state.BuildState, props map[string]string) {
	if len(props) == 0 {
		return
	}
	if value, ok := lookup(props, engineAliases); ok {
		s.Engine = value
	}
	if value, ok := lookup(props, formatAliases); ok {
		s.OutputFormat = strings.ToLower(value)
	}
	if value, ok := lookup(props, producerAliases); ok {
		s.Producer = value
	}
	if value, ok := lookup(props, outputDirAliases); ok {
		s.OutputDirectory = value
	}
	if value, ok := lookup(props, jobNameAliases); ok {
		s.SetJobNames(splitList(value))
	}
	if value, ok := lookup(props, cleanAliases); ok {
		s.CleanPatterns = splitList(value)
	}
	if value, ok := lookup(props, shellEscapeAliases); ok {
		s.EnableShellEscape = parseBool(value)
	}
	if value, ok := lookup(props, synctexAliases); ok {
		s.EnableSynctex = parseBool(value)
	}
	if value, ok := lookup(props, extendedModeAliases); ok {
		s.EnableExtendedBuildMode = parseBool(value)
	}
	if value, ok := lookup(props, moveResultAliases); ok {
		s.MoveResultToSourceDirectory = parseBool(value)
	}
}

// lookup walks an alias chain and returns the first non-empty value.
func lookup(props map[string]string, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if value, ok := props[alias]; ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// splitList splits a property value on commas or whitespace.
func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "on", "1":
		return true
	default:
		return false
	}
}
