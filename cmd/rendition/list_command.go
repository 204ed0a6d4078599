package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"rendition/internal/api"
	"rendition/internal/config"
	"rendition/internal/queue"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets and their transcode tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				listing, err := store.ListAssets(cmd.Context())
				if err != nil {
					return err
				}

				if jsonOutput {
					encoder := json.NewEncoder(cmd.OutOrStdout())
					encoder.SetIndent("", "  ")
					return encoder.Encode(api.FromListing(listing))
				}

				if len(listing) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(listing))
				for _, entry := range listing {
					for i, task := range entry.Tasks {
						source := ""
						if i == 0 {
							source = truncateText(entry.Asset.SourcePath, 48)
						}
						output := ""
						if meta := task.Meta(); meta != nil {
							output = meta.OutputFile
						} else if task.ErrorMessage != "" {
							output = truncateText(task.ErrorMessage, 48)
						}
						rows = append(rows, []string{
							source,
							task.ID,
							task.Variant,
							statusLabel(string(task.Status)),
							formatTimestamp(task.UpdatedAt),
							output,
						})
					}
				}

				out := renderTable(
					[]string{"Source", "Task", "Variant", "Status", "Updated", "Output / Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the listing as JSON")
	return cmd
}
