package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"testforge/internal/logging"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		metricsAddr string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <file.py>",
		Short: "Rerun the pipeline every time a module is saved",
		Long: `Runs the pipeline once, then again after each save of the file.
Rapid successive writes are coalesced. With --metrics-addr the Prometheus
metrics for all runs are served on /metrics until the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			rerun := func(ctx context.Context, p string) {
				report, err := a.runFile(ctx, p)
				if report != "" {
					fmt.Fprintln(out, report)
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p, err)
				}
			}

			fw, err := newFileWatcher(path, debounce, rerun)
			if err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			if metricsAddr != "" {
				g.Go(func() error {
					return a.metrics.Serve(ctx, metricsAddr)
				})
			}
			g.Go(func() error {
				rerun(ctx, fw.target)
				fmt.Fprintln(out, a.styles.Muted.Render("watching "+path+" (Ctrl+C to stop)"))
				return fw.Run(ctx)
			})

			err = g.Wait()
			logging.Boot("watch stopped: %s", path)
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a change triggers a run")
	return cmd
}
