package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"rendition/internal/config"
	"rendition/internal/ingest"
	"rendition/internal/plan"
	"rendition/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var variantFlags []string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Queue a media file for transcoding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				source, err := config.ExpandPath(args[0])
				if err != nil {
					return err
				}

				variants := plan.ParseTokens(variantFlags)
				coordinator := ingest.NewCoordinator(cfg, store, nil)
				asset, tasks, err := coordinator.Ingest(cmd.Context(), source, variants)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as asset %s with %d tasks:\n",
					filepath.Base(source), asset.ID, len(tasks))
				for _, task := range tasks {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", task.ID, task.Variant)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&variantFlags, "variant", nil,
		"Variant token like MP4-720p (repeatable, defaults to the standard set)")
	return cmd
}
