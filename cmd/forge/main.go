package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"testforge/internal/config"
	"testforge/internal/logging"
)

// globalOptions holds the persistent flags and the configuration they produce.
type globalOptions struct {
	configPath string
	verbose    bool
	sandbox    string
	outputDir  string
	plain      bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "forge - LLM-driven unit test generation for Python modules",
		Long: `forge analyzes a Python module, asks an LLM for a unittest suite,
runs the suite in an isolated workspace and scores the result.

Without an API key every stage falls back to deterministic output:
a skeleton suite and feedback calculated from the pass rate.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: "+config.DefaultConfigPath+")")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&opts.sandbox, "sandbox", "", "Isolation mode: none or docker (overrides config)")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", "", "Artifact directory (overrides config)")
	flags.BoolVar(&opts.plain, "plain", false, "Print reports without markdown rendering")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newGenerateCmd(opts),
		newFeedbackCmd(opts),
		newAnalyzeCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(opts),
		newInitCmd(opts),
	)
	return rootCmd
}

// setup loads configuration, applies flag overrides and installs the logger.
func (o *globalOptions) setup() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.sandbox != "" {
		cfg.Execution.Sandbox = o.sandbox
	}
	if o.outputDir != "" {
		cfg.Output.Dir = o.outputDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg

	logger, err := buildLogger(cfg.Logging, o.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.logger = logger
	logging.SetLogger(logger)
	logging.Configure(logging.Config{
		DebugMode:  o.verbose || cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
	})
	logging.BootDebug("config loaded: provider=%s sandbox=%s output=%s", cfg.LLM.Provider, cfg.Execution.Sandbox, cfg.Output.Dir)
	return nil
}

func buildLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" || lc.Format == "json" {
		zc.Encoding = lc.Format
	}
	if lc.Format == "console" {
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if lc.Level != "" {
		level, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
