// Package dicy adapts the alternate monolithic build engine. Unlike the
// latexmk driver, which is re-invoked per job, one engine instance is started
// lazily and serves every build for the lifetime of its owner.
package dicy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"texbuild/internal/config"
	"texbuild/internal/fileutil"
	"texbuild/internal/logging"
	"texbuild/internal/magic"
)

// commandContext is swapped in tests to stub process execution.
var commandContext = exec.CommandContext

// Engine wraps the external dicy binary.
type Engine struct {
	cfg    config.DiCy
	logger *slog.Logger

	mu      sync.Mutex
	started bool
}

// Invocation carries the per-run state produced by Initialize: the resolved
// root document and the option flags for the next Run.
type Invocation struct {
	Root  string
	flags []string
}

// New constructs an engine adapter. The underlying binary is not probed until
// the first Run.
func New(cfg config.DiCy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{cfg: cfg, logger: logging.NewComponentLogger(logger, "dicy")}
}

// Initialize resolves the true root for path by chasing root pointers and
// prepares the option flags for the run. A rebuild discards the engine's
// on-disk cache before running; fastLoad skips cache validation.
func (e *Engine) Initialize(path string, rebuild, fastLoad bool) (*Invocation, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty document path")
	}
	scan := magic.Scan(path)

	flags := []string{"--severity=info"}
	if fastLoad {
		flags = append(flags, "--validate-cache=false")
	}
	if rebuild {
		flags = append(flags, "--load-cache=false")
		if err := e.clearCache(scan.RootPath); err != nil {
			return nil, fmt.Errorf("clear engine cache: %w", err)
		}
	}
	if !e.cfg.ApplyUserOptions {
		flags = append(flags, "--ignore-user-options")
	}

	return &Invocation{Root: scan.RootPath, flags: flags}, nil
}

// clearCache removes the engine's persisted cache file for root.
func (e *Engine) clearCache(root string) error {
	base := strings.TrimSuffix(filepath.Base(root), filepath.Ext(root))
	cachePath := filepath.Join(filepath.Dir(root), base+"-cache.yaml")
	return fileutil.RemoveIfExists(cachePath)
}

// Run executes one build through the engine. The boolean covers all targets;
// the engine reports no per-target breakdown, so partial success is not
// distinguished. On success the returned paths are the produced outputs,
// derived from the root name and outputFormat, excluding SyncTeX side-cars.
func (e *Engine) Run(ctx context.Context, inv *Invocation, outputFormat string) (bool, []string, error) {
	if inv == nil {
		return false, nil, errors.New("engine not initialized")
	}

	e.mu.Lock()
	if !e.started {
		e.logger.Info("starting build engine", logging.String("binary", e.binary()))
		e.started = true
	}
	e.mu.Unlock()

	args := append([]string{"build"}, inv.flags...)
	args = append(args, inv.Root)

	cmd := commandContext(ctx, e.binary(), args...)
	cmd.Dir = filepath.Dir(inv.Root)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	e.logger.Debug("invoking engine",
		logging.String(logging.FieldRoot, inv.Root),
		logging.String("args", strings.Join(args, " ")))

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return false, nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.logger.Error("engine build failed",
				logging.Int(logging.FieldExitCode, exitErr.ExitCode()),
				logging.String("tool_output", tail(output.String())))
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("run engine: %w", err)
	}

	return true, e.outputTargets(inv.Root, outputFormat), nil
}

// outputTargets derives the produced output paths for root. The engine does
// not report its targets on stdout, so the main output is reconstructed from
// the root name and the configured format.
func (e *Engine) outputTargets(root, outputFormat string) []string {
	format := strings.TrimSpace(outputFormat)
	if format == "" {
		format = "pdf"
	}
	base := strings.TrimSuffix(root, filepath.Ext(root))
	target := base + "." + format
	if strings.HasSuffix(target, ".synctex.gz") {
		return nil
	}
	if _, err := os.Stat(target); err != nil {
		e.logger.Warn("engine reported success but the expected output is missing",
			logging.String("target", target))
		return nil
	}
	return []string{target}
}

func (e *Engine) binary() string {
	if strings.TrimSpace(e.cfg.Path) != "" {
		return e.cfg.Path
	}
	return "dicy"
}

func tail(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
