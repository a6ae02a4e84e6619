package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/knowdisk/knowdisk/internal/orchestrator"
)

func newWatchCmd(root *string) *cobra.Command {
	var reconcileIntervalOverride time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the source root, incrementally indexing changes as they occur",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*root)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			w := a.watcher()

			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				if runErr := w.Start(watchCtx); runErr != nil {
					a.logger.Error("watcher stopped", "error", runErr)
				}
			}()

			interval := time.Duration(a.cfg.Indexing.Reconcile.IntervalMs) * time.Millisecond
			if reconcileIntervalOverride > 0 {
				interval = reconcileIntervalOverride
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s (reconcile every %s)\n", a.root, interval)

			for {
				select {
				case <-ctx.Done():
					w.Stop()
					return nil
				case ev, ok := <-w.Events():
					if !ok {
						return nil
					}
					if _, err := a.orch.RunIncremental(ctx, []orchestrator.FsChange{{Path: ev.Path, EventType: ev.Type}}, "watcher"); err != nil {
						a.logger.Error("incremental index failed", "path", ev.Path, "error", err)
					}
				case watchErr, ok := <-w.Errors():
					if ok {
						a.logger.Warn("watcher error", "error", watchErr)
					}
				case <-ticker.C:
					if _, err := a.orch.RunScheduledReconcile(ctx); err != nil {
						a.logger.Error("scheduled reconcile failed", "error", err)
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&reconcileIntervalOverride, "reconcile-interval", 0, "override the configured reconcile interval")
	return cmd
}
