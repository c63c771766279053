package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent build records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("build history is disabled; enable [history] in the configuration")
			}

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "no builds recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.CreatedAt.Local().Format(time.DateTime),
					rec.Root,
					rec.Job,
					rec.Engine,
					rec.Outcome,
					rec.Duration.Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Root", "Job", "Engine", "Outcome", "Duration"},
				rows, 5))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show")
	return cmd
}
