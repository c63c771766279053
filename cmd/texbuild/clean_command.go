package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean FILE",
		Short: "Remove generated artifacts for a document",
		Long: "Remove the generated files matching the configured clean patterns,\n" +
			"evaluated per job with {jobname} substituted. No compile is run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := ctx.ensureComposer()
			if err != nil {
				return err
			}
			target, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve document path: %w", err)
			}
			ok, err := comp.Clean(cmd.Context(), target)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to clean for %s (unsupported file type)\n", args[0])
			}
			return nil
		},
	}
}
