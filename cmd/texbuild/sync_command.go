package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var line int

	cmd := &cobra.Command{
		Use:   "sync FILE",
		Short: "Jump the viewer to the output position for a source line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := ctx.ensureComposer()
			if err != nil {
				return err
			}
			target, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve document path: %w", err)
			}
			ok, err := comp.Sync(cmd.Context(), target, line)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no output could be opened for %s; build it first", args[0])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&line, "line", 1, "Source line to jump to")
	return cmd
}
