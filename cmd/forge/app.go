package main

import (
	"context"
	"errors"

	"testforge/internal/config"
	"testforge/internal/logging"
	"testforge/internal/metrics"
	"testforge/internal/perception"
	"testforge/internal/shards/tester"
	"testforge/internal/store"
	"testforge/internal/tactile"
	"testforge/internal/types"
	"testforge/internal/ux"
)

// app is the wired pipeline shared by the commands.
type app struct {
	cfg      *config.Config
	shard    *tester.TesterShard
	metrics  *metrics.Metrics
	audit    *tactile.AuditLogger
	history  *store.HistoryStore // nil when history is disabled
	writer   *store.ArtifactWriter
	renderer *ux.Renderer
	styles   ux.Styles
}

// newApp builds the pipeline from cfg. A missing API key is not an error: the
// shard runs without an LLM client and every stage uses its fallback.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg := opts.cfg

	client, err := perception.NewClientFromConfig(ctx, cfg)
	if err != nil {
		logging.BootWarn("LLM disabled, using fallbacks: %v", err)
	}

	a := &app{
		cfg:     cfg,
		shard:   tester.NewTesterShardWithConfig(tester.TesterConfigFrom(cfg)),
		metrics: metrics.New(),
		audit:   tactile.NewAuditLogger(),
		writer:  store.NewArtifactWriter(cfg.Output.Dir),
		styles:  ux.DefaultStyles(),
	}
	a.renderer = ux.NewRenderer(a.styles, ux.ReportOptions{Width: 90, Plain: opts.plain})

	if client != nil {
		a.shard.SetLLMClient(client)
	}
	a.audit.AddCallback(a.metrics.ObserveExecution)
	a.shard.SetRunner(tactile.NewIsolatedExecutorFromConfig(cfg, a.audit))
	a.shard.AddObserver(a.metrics.ObserveRun)

	if !cfg.Output.DisableHistory {
		history, err := store.NewHistoryStore(cfg.HistoryPath())
		if err != nil {
			return nil, err
		}
		a.history = history
		a.shard.AddObserver(a.recordRun)
	}
	return a, nil
}

// recordRun persists a finished run. Failures are logged, never surfaced.
func (a *app) recordRun(res *tester.Result, _ error) {
	if res == nil {
		return
	}
	model := ""
	if a.cfg.LLM.HasCredentials() {
		model = a.cfg.LLM.Model
	}
	if err := a.history.Record(store.RecordFromResult(res, model)); err != nil {
		logging.StoreWarn("failed to record run %s: %v", res.RunID, err)
	}
}

// runFile runs the full pipeline for path and persists its artifacts. The
// returned report is rendered even when err is non-nil, provided a result exists.
func (a *app) runFile(ctx context.Context, path string) (string, error) {
	res, err := a.shard.Run(ctx, tester.Request{Path: path})
	if res == nil {
		return "", err
	}

	paths, werr := a.writer.Write(res)
	if werr != nil {
		logging.StoreWarn("failed to write artifacts for %s: %v", res.Module, werr)
	}
	return a.renderer.Report(res, paths, err), errors.Join(err, werr)
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// isExecutionError reports whether err came from the isolated runner.
func isExecutionError(err error) bool {
	return errors.Is(err, types.ErrExecution)
}
