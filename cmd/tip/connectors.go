package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/quantfold/tip/config"
	"github.com/quantfold/tip/internal/alerts"
	"github.com/quantfold/tip/internal/archive"
	"github.com/quantfold/tip/internal/connector"
	"github.com/quantfold/tip/internal/connector/edgar"
	"github.com/quantfold/tip/internal/connector/reddit"
	"github.com/quantfold/tip/internal/connector/wsbmock"
	"github.com/quantfold/tip/internal/domain/canarystore"
	"github.com/quantfold/tip/internal/fetchstate"
	"github.com/quantfold/tip/internal/infra/persistence/postgres"
	"github.com/quantfold/tip/internal/telemetry"
)

const canaryWriteTimeout = 5 * time.Second

// adapterBuilder constructs one source adapter from the loaded watchlists.
// The returned cleanup releases adapter-owned resources once its loop stops.
type adapterBuilder func(settings config.Settings, connectors config.Connectors, logger *log.Logger) (connector.Adapter, func(), error)

func newRunWSBCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-wsb",
		Short: "Run the deterministic forum fixture connector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnector(cmd, opts, buildWSBMock)
		},
	}
}

func newRunRedditCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-reddit",
		Short: "Poll the configured subreddits for ticker mentions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnector(cmd, opts, buildReddit)
		},
	}
}

func newRunEdgarCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-edgar",
		Short: "Poll the watched registrants for fresh filings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnector(cmd, opts, buildEdgar)
		},
	}
}

func newRunConnectorLoopCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run-connector-loop",
		Short: "Run the edgar and reddit connectors side by side until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnectorLoop(cmd.Context(), opts, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while the loop runs")
	return cmd
}

func buildWSBMock(config.Settings, config.Connectors, *log.Logger) (connector.Adapter, func(), error) {
	return wsbmock.New(), func() {}, nil
}

func buildReddit(_ config.Settings, connectors config.Connectors, logger *log.Logger) (connector.Adapter, func(), error) {
	rc := connectors.Reddit
	if err := rc.Validate(); err != nil {
		return nil, nil, err
	}
	adapter := reddit.New(reddit.Config{
		Subreddits: rc.Subreddits,
		UserAgent:  rc.Identity.UserAgent("reddit-connector"),
		MaxRPS:     rc.MaxRPS,
		Logger:     logger,
	})
	return adapter, func() {}, nil
}

func buildEdgar(settings config.Settings, connectors config.Connectors, logger *log.Logger) (connector.Adapter, func(), error) {
	ec := connectors.Edgar
	if err := ec.Validate(); err != nil {
		return nil, nil, err
	}
	state, err := fetchstate.Open(settings.StateDBPath)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := edgar.New(edgar.Config{
		CIKs:      ec.CIKs,
		Forms:     ec.Forms,
		UserAgent: ec.Identity.UserAgent("edgar-connector"),
		MaxRPS:    ec.MaxRPS,
		State:     state,
		Logger:    logger,
	})
	if err != nil {
		_ = state.Close()
		return nil, nil, err
	}
	return adapter, func() { _ = state.Close() }, nil
}

// connectorEnv bundles the collaborators every connector command dials
// before its poll loop starts.
type connectorEnv struct {
	settings   config.Settings
	connectors config.Connectors
	mode       connector.Mode
	provider   *telemetry.Provider
	metrics    *telemetry.PipelineMetrics
	pool       *pgxpool.Pool
	store      *postgres.Store
	blobs      *archive.Store
	notifier   *alerts.Notifier
	logger     *log.Logger
}

func openConnectorEnv(ctx context.Context, opts *rootOptions, logger *log.Logger) (*connectorEnv, error) {
	mode, err := connector.ParseMode(opts.mode)
	if err != nil {
		return nil, err
	}
	settings, err := loadSettings(logger)
	if err != nil {
		return nil, err
	}
	if mode == connector.ModeEmit {
		if err := settings.RequireQueue(); err != nil {
			return nil, err
		}
	}

	connectors, fromFile, err := config.LoadConnectors(opts.connectorsPath(settings))
	if err != nil {
		return nil, err
	}
	if !fromFile {
		logger.Printf("connectors file not found, using defaults")
	}

	provider, metrics, err := initTelemetry(ctx, settings, logger)
	if err != nil {
		return nil, err
	}

	pool, store, err := openStore(ctx, settings)
	if err != nil {
		shutdownTelemetry(provider, logger)
		return nil, err
	}

	blobs, err := openArchive(ctx, settings)
	if err != nil {
		pool.Close()
		shutdownTelemetry(provider, logger)
		return nil, err
	}

	return &connectorEnv{
		settings:   settings,
		connectors: connectors,
		mode:       mode,
		provider:   provider,
		metrics:    metrics,
		pool:       pool,
		store:      store,
		blobs:      blobs,
		notifier:   alerts.New(settings.SlackWebhookURL, alerts.WithLogger(logger)),
		logger:     logger,
	}, nil
}

func (e *connectorEnv) close() {
	e.pool.Close()
	shutdownTelemetry(e.provider, e.logger)
}

func (e *connectorEnv) newRunner(adapter connector.Adapter) *connector.Runner {
	return connector.NewRunner(adapter, e.mode, e.store.Events, e.blobs,
		connector.WithLogger(e.logger),
		connector.WithMetrics(e.metrics),
		connector.WithNotifier(e.notifier),
	)
}

func runConnector(cmd *cobra.Command, opts *rootOptions, build adapterBuilder) error {
	ctx := cmd.Context()
	logger := newLogger()

	env, err := openConnectorEnv(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer env.close()

	adapter, cleanup, err := build(env.settings, env.connectors, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	reporter := telemetry.NewRunReporter(adapter.Name())
	loopErr := env.newRunner(adapter).Loop(ctx, connector.LoopConfig{
		Interval:  opts.intervalDuration(),
		MaxCycles: opts.maxCycles,
	}, reporter)

	summary := recordCanary(env.store.Canary, reporter, logger)
	if stats, err := summary.StatsJSON(); err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(stats))
	}
	return loopErr
}

func runConnectorLoop(ctx context.Context, opts *rootOptions, metricsAddr string) error {
	logger := newLogger()

	env, err := openConnectorEnv(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer env.close()

	type loopRun struct {
		runner   *connector.Runner
		reporter *telemetry.RunReporter
	}
	var runs []loopRun
	for _, build := range []adapterBuilder{buildEdgar, buildReddit} {
		adapter, cleanup, err := build(env.settings, env.connectors, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		runs = append(runs, loopRun{
			runner:   env.newRunner(adapter),
			reporter: telemetry.NewRunReporter(adapter.Name()),
		})
	}

	serveCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	var serverWG conc.WaitGroup
	if metricsAddr != "" {
		serverWG.Go(func() {
			if err := telemetry.ServeMetrics(serveCtx, metricsAddr, env.provider.Registry(), logger); err != nil {
				logger.Printf("metrics endpoint: %v", err)
			}
		})
	}

	loopCfg := connector.LoopConfig{
		Interval:  opts.intervalDuration(),
		MaxCycles: opts.maxCycles,
	}
	var wg conc.WaitGroup
	for _, run := range runs {
		wg.Go(func() {
			if err := run.runner.Loop(ctx, loopCfg, run.reporter); err != nil {
				logger.Printf("connector loop: %v", err)
			}
		})
	}
	wg.Wait()
	stopServer()
	serverWG.Wait()

	for _, run := range runs {
		recordCanary(env.store.Canary, run.reporter, logger)
	}
	return nil
}

// recordCanary closes the run report and persists one canary row so deploys
// can compare a new build against the fleet. It uses a fresh context: the
// process context is usually already cancelled when a loop stops.
func recordCanary(canary *postgres.CanaryStore, reporter *telemetry.RunReporter, logger *log.Logger) telemetry.RunSummary {
	summary := reporter.Finish()
	stats, err := summary.StatsJSON()
	if err != nil {
		logger.Printf("render run summary: %v", err)
		return summary
	}

	ctx, cancel := context.WithTimeout(context.Background(), canaryWriteTimeout)
	defer cancel()
	if _, err := canary.Insert(ctx, canarystore.Run{
		Service:   summary.Service,
		Version:   telemetry.DefaultConfig().ServiceVersion,
		StatsJSON: stats,
		Status:    summary.Status(),
	}); err != nil {
		logger.Printf("record canary run: %v", err)
		return summary
	}
	logger.Printf("run recorded: service=%s status=%s cycles=%d fetched=%d ingested=%d deduped=%d errors=%d",
		summary.Service, summary.Status(), summary.Cycles, summary.Fetched, summary.Ingested, summary.Deduped, summary.Errors)
	return summary
}
