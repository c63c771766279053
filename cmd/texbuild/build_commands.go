package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"texbuild/internal/composer"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var noOpen bool
	var line int

	cmd := &cobra.Command{
		Use:   "build FILE",
		Short: "Compile a document",
		Long: "Compile a document through the configured backend. The file may be a\n" +
			"subfile; magic root comments are followed to the true root document.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, ctx, args[0], false, !noOpen, line)
		},
	}

	cmd.Flags().BoolVar(&noOpen, "no-open", false, "Do not open the result in a viewer")
	cmd.Flags().IntVar(&line, "line", 0, "Source line forwarded to SyncTeX-capable viewers")
	return cmd
}

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	var noOpen bool
	var line int

	cmd := &cobra.Command{
		Use:   "rebuild FILE",
		Short: "Compile a document from scratch, discarding incremental caches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, ctx, args[0], true, !noOpen, line)
		},
	}

	cmd.Flags().BoolVar(&noOpen, "no-open", false, "Do not open the result in a viewer")
	cmd.Flags().IntVar(&line, "line", 0, "Source line forwarded to SyncTeX-capable viewers")
	return cmd
}

func runBuild(cmd *cobra.Command, ctx *commandContext, path string, rebuild, open bool, line int) error {
	comp, err := ctx.ensureComposer()
	if err != nil {
		return err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve document path: %w", err)
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok, err := comp.Build(runCtx, target, composer.BuildOptions{
		Rebuild:    rebuild,
		OpenResult: open,
		LineNumber: line,
	})
	if err != nil {
		if errors.Is(err, composer.ErrKilled) {
			return fmt.Errorf("build killed")
		}
		return err
	}
	if !ok {
		return fmt.Errorf("build failed for %s", path)
	}
	return nil
}
