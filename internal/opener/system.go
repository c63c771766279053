package opener

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var commandContext = exec.CommandContext

var viewableExtensions = map[string]struct{}{
	".pdf": {},
	".dvi": {},
	".ps":  {},
}

// System hands the output to the platform's default document handler. No
// SyncTeX support; the handler returns immediately, so background opening is
// always available.
type System struct {
	background bool
}

// NewSystem constructs the system opener.
func NewSystem(background bool) *System {
	return &System{background: background}
}

func (s *System) Name() string { return "system" }

func (s *System) CanOpen(path string) bool {
	_, ok := viewableExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (s *System) HasSynctex() bool { return false }

func (s *System) CanOpenInBackground() bool { return true }

func (s *System) Open(ctx context.Context, outputPath, _ string, _ int) error {
	launcher := "xdg-open"
	if runtime.GOOS == "darwin" {
		launcher = "open"
	}
	cmd := commandContext(ctx, launcher, outputPath)
	if s.background {
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("open %s: %w", outputPath, err)
		}
		go func() { _ = cmd.Wait() }()
		return nil
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("open %s: %w", outputPath, err)
	}
	return nil
}

var _ Opener = (*System)(nil)
