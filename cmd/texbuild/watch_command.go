package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"texbuild/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "Rebuild the document whenever it or a subfile is saved",
		Long: "Watch the document's root and every file on its root-pointer chain,\n" +
			"rebuilding after each settled save. Interrupt with Ctrl-C to stop;\n" +
			"an in-flight build is killed cleanly.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			comp, err := ctx.ensureComposer()
			if err != nil {
				return err
			}
			target, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve document path: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-runCtx.Done()
				comp.Kill()
			}()

			watcher := watch.New(cfg, logger, comp)
			return watcher.Run(runCtx, target)
		},
	}
}
