package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rendition/internal/daemon"
	"rendition/internal/encoding"
	"rendition/internal/logging"
	"rendition/internal/preflight"
	"rendition/internal/queue"
	"rendition/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the rendition daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			results := preflight.RunAll(signalCtx, cfg)
			statuses := preflight.CheckSystemDeps(signalCtx, cfg)
			if !preflight.AllPassed(results, statuses) {
				for _, result := range results {
					if !result.Passed {
						fmt.Fprintf(cmd.ErrOrStderr(), "preflight: %s: %s\n", result.Name, result.Detail)
					}
				}
				for _, status := range statuses {
					if !status.Available && !status.Optional {
						fmt.Fprintf(cmd.ErrOrStderr(), "preflight: %s: %s\n", status.Name, status.Detail)
					}
				}
				return fmt.Errorf("preflight checks failed")
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}

			engine := encoding.NewFFmpegEngine(cfg, logger)
			manager := workflow.NewManager(cfg, store, engine, logger)
			d, err := daemon.New(cfg, store, logger, manager)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}

			if addr := d.APIAddress(); addr != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "rendition daemon listening on %s\n", addr)
			}
			<-signalCtx.Done()
			d.Stop()
			return nil
		},
	}
}
