package opener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Zathura drives the zathura viewer, which supports SyncTeX forward search:
// the viewer jumps to the output position matching the source line.
type Zathura struct{}

// NewZathura constructs the zathura opener.
func NewZathura() *Zathura { return &Zathura{} }

func (z *Zathura) Name() string { return "zathura" }

func (z *Zathura) CanOpen(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (z *Zathura) HasSynctex() bool { return true }

func (z *Zathura) CanOpenInBackground() bool { return false }

func (z *Zathura) Open(ctx context.Context, outputPath, sourcePath string, lineNumber int) error {
	args := []string{outputPath}
	if sourcePath != "" && lineNumber > 0 {
		args = append(args, "--synctex-forward", fmt.Sprintf("%d:1:%s", lineNumber, sourcePath))
	}
	cmd := commandContext(ctx, "zathura", args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s in zathura: %w", outputPath, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

var _ Opener = (*Zathura)(nil)
