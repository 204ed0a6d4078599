package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"rendition/internal/config"
	"rendition/internal/preflight"
	"rendition/internal/queue"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiBlue  = "\x1b[34m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show environment and queue health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := isTerminalWriter(out)

				printSectionHeader(out, "Environment", colorize)
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					printCheckLine(out, result.Name, result.Passed, result.Detail, colorize)
				}
				for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
					detail := status.Command
					if !status.Available {
						detail = status.Detail
						if status.Optional {
							detail += " (optional)"
						}
					}
					printCheckLine(out, status.Name, status.Available || status.Optional, detail, colorize)
				}

				printSectionHeader(out, "Queue", colorize)
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				for _, status := range queue.AllStatuses() {
					count := countFor(health, status)
					fmt.Fprintf(out, "  %-12s %d\n", statusLabel(string(status)), count)
				}
				fmt.Fprintf(out, "  %-12s %d\n", "Total", health.Total)
				return nil
			})
		},
	}
}

func countFor(health queue.HealthSummary, status queue.Status) int {
	switch status {
	case queue.StatusQueued:
		return health.Queued
	case queue.StatusProcessing:
		return health.Processing
	case queue.StatusCompleted:
		return health.Completed
	case queue.StatusFailed:
		return health.Failed
	default:
		return 0
	}
}

func printSectionHeader(out io.Writer, title string, colorize bool) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		line = ansiBlue + line + ansiReset
	}
	fmt.Fprintln(out, line)
}

func printCheckLine(out io.Writer, name string, ok bool, detail string, colorize bool) {
	mark := "ok"
	if !ok {
		mark = "FAIL"
	}
	if colorize {
		if ok {
			mark = ansiGreen + mark + ansiReset
		} else {
			mark = ansiRed + mark + ansiReset
		}
	}
	fmt.Fprintf(out, "  [%s] %-18s %s\n", mark, name, detail)
}
