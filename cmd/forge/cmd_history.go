package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"testforge/internal/store"
	"testforge/internal/ux"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		module string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, optionally for one module with its score trend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cfg.Output.DisableHistory {
				return errors.New("run history is disabled (output.disable_history)")
			}

			history, err := store.NewHistoryStore(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer history.Close()

			styles := ux.DefaultStyles()
			out := cmd.OutOrStdout()

			if module == "" {
				runs, err := history.Recent(limit)
				if err != nil {
					return err
				}
				fmt.Fprint(out, ux.RenderHistory(styles, runs))
				return nil
			}

			runs, err := history.ByModule(module, limit)
			if err != nil {
				return err
			}
			trend, err := history.ModuleTrend(module)
			if err != nil {
				return err
			}
			fmt.Fprint(out, ux.RenderHistory(styles, runs))
			fmt.Fprintln(out, ux.RenderTrend(styles, trend))
			return nil
		},
	}
	cmd.Flags().StringVarP(&module, "module", "m", "", "Only show runs for this module")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}
