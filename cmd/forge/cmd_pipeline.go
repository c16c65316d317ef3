package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"testforge/internal/shards/tester"
	"testforge/internal/world"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file.py>...",
		Short: "Generate, execute and score tests for one or more modules",
		Long: `Runs the full pipeline for every file: structural analysis, test
generation, isolated execution and feedback. Artifacts are written to the
output directory and each run is recorded in the history database.

Files are processed concurrently, bounded by execution.parallelism.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkModuleNames(args); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			reports := make([]string, len(args))
			errs := make([]error, len(args))

			var g errgroup.Group
			g.SetLimit(opts.cfg.Execution.Parallelism)
			for i, path := range args {
				g.Go(func() error {
					reports[i], errs[i] = a.runFile(cmd.Context(), path)
					return nil
				})
			}
			_ = g.Wait()

			out := cmd.OutOrStdout()
			failed, execFailed := 0, 0
			for i, path := range args {
				if reports[i] != "" {
					fmt.Fprintln(out, reports[i])
				}
				if errs[i] != nil {
					failed++
					if isExecutionError(errs[i]) {
						execFailed++
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, errs[i])
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed (%d could not execute)", failed, len(args), execFailed)
			}
			return nil
		},
	}
}

// checkModuleNames rejects files that map to the same module name, since their
// artifacts would share paths in the output directory.
func checkModuleNames(paths []string) error {
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		module := world.ImportableName(path)
		if prev, ok := seen[module]; ok {
			return fmt.Errorf("%s and %s both map to module %q; run them separately or rename one", prev, path, module)
		}
		seen[module] = path
	}
	return nil
}

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <file.py>",
		Short: "Generate a test module without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.shard.Generate(cmd.Context(), tester.Request{Path: args[0]})
			if err != nil {
				return err
			}
			paths, err := a.writer.Write(res)
			if err != nil {
				return err
			}

			s := a.styles
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %d test cases (%s)\n",
				s.Title.Render(res.Module), len(res.Artifact.TestCases), res.Artifact.Origin)
			for _, p := range paths.All() {
				fmt.Fprintln(out, "  "+s.Muted.Render(p))
			}
			return nil
		},
	}
}

func newFeedbackCmd(opts *globalOptions) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "feedback --output <run.txt> <file.py>",
		Short: "Score an existing test run output against a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(outputPath)
			if err != nil {
				return fmt.Errorf("failed to read run output: %w", err)
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.shard.Feedback(cmd.Context(), tester.Request{Path: args[0]}, string(raw))
			if err != nil {
				return err
			}
			paths, err := a.writer.Write(res)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.renderer.Report(res, paths, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "", "File holding verbose unittest runner output")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newAnalyzeCmd(_ *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file.py>",
		Short: "Print the structural summary of a module as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			summary := world.NewPythonAnalyzer().Analyze(string(source), world.ImportableName(args[0])+".py")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}
