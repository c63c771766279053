package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"texbuild/internal/builder"
	"texbuild/internal/config"
	"texbuild/internal/deps"
	"texbuild/internal/logging"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools and resources builds rely on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, 8)
			for _, status := range deps.CheckBinaries(requirements(cfg)) {
				rows = append(rows, depRow(status))
			}
			rows = append(rows, versionRow(cmd, cfg))
			rows = append(rows, freeSpaceRow(cfg))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Dependency", "Status", "Detail"},
				rows))
			return nil
		},
	}
}

func requirements(cfg *config.Config) []deps.Requirement {
	reqs := []deps.Requirement{
		{Name: "latexmk", Command: cfg.Latexmk.Path, Description: "build driver"},
		{Name: "engine", Command: cfg.Build.Engine, Description: "TeX engine"},
	}
	if strings.TrimSpace(cfg.Build.Producer) != "" {
		reqs = append(reqs, deps.Requirement{
			Name: "producer", Command: cfg.Build.Producer,
			Description: "secondary output converter", Optional: true,
		})
	}
	if cfg.Build.Backend == config.BackendDiCy {
		reqs = append(reqs, deps.Requirement{
			Name: "dicy", Command: cfg.DiCy.Path, Description: "alternate build backend",
		})
	}
	if strings.TrimSpace(cfg.Viewer.Name) != "" {
		reqs = append(reqs, deps.Requirement{
			Name: "viewer", Command: cfg.Viewer.Name,
			Description: "configured result viewer", Optional: true,
		})
	}
	return reqs
}

func depRow(status deps.Status) []string {
	label := "ok"
	if !status.Available {
		if status.Optional {
			label = "missing (optional)"
		} else {
			label = "missing"
		}
	}
	detail := status.Detail
	if detail == "" {
		detail = status.Description
	}
	return []string{status.Name, label, detail}
}

func versionRow(cmd *cobra.Command, cfg *config.Config) []string {
	driver := builder.NewLatexmk(cfg.Latexmk, logging.NewNop())
	status := driver.CheckRuntime(cmd.Context())
	detail := status.Detail
	if status.Version != "" {
		detail = fmt.Sprintf("version %s (minimum %s)", status.Version, cfg.Latexmk.MinVersion)
	}
	return []string{"latexmk version", string(status.Level), detail}
}

func freeSpaceRow(cfg *config.Config) []string {
	status := deps.CheckFreeSpace(cfg.Paths.StateDir)
	label := "ok"
	if !status.Available {
		label = "low"
	}
	return []string{"free space", label, status.Detail}
}
