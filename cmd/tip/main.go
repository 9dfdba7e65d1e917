// Command tip operates the trading-intelligence ingestion pipeline: source
// connectors, the outbox dispatcher, event replay, the queue consumer, and
// the schema migrations backing them.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/quantfold/tip/config"
	"github.com/quantfold/tip/internal/archive"
	"github.com/quantfold/tip/internal/awsconn"
	"github.com/quantfold/tip/internal/bus"
	"github.com/quantfold/tip/internal/infra/persistence"
	"github.com/quantfold/tip/internal/infra/persistence/postgres"
	"github.com/quantfold/tip/internal/telemetry"
)

const (
	loggerPrefix             = "tip "
	telemetryShutdownTimeout = 5 * time.Second
)

// rootOptions carries the persistent flags shared across pipeline commands.
type rootOptions struct {
	mode      string
	interval  int
	batchSize int
	maxCycles int
	config    string
}

// intervalDuration maps the --interval seconds onto the loop configuration;
// zero keeps the one-shot default.
func (o *rootOptions) intervalDuration() time.Duration {
	if o.interval <= 0 {
		return 0
	}
	return time.Duration(o.interval) * time.Second
}

// connectorsPath resolves the watchlist file: the --config flag wins over
// the environment-derived settings.
func (o *rootOptions) connectorsPath(settings config.Settings) string {
	if o.config != "" {
		return o.config
	}
	return settings.ConnectorsFile
}

func main() {
	ctx, cancel := newSignalContext()
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		newLogger().Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tip",
		Short:         "tip ingests market chatter and regulatory filings into a canonical event pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.mode, "mode", "shadow", "ingestion mode: shadow (persist only) or emit (persist and enqueue)")
	flags.IntVar(&opts.interval, "interval", 0, "seconds between cycles; 0 runs one cycle and exits")
	flags.IntVar(&opts.batchSize, "batch-size", 0, "rows per cycle; 0 uses the command default")
	flags.IntVar(&opts.maxCycles, "max-cycles", 0, "stop after this many cycles; 0 means unbounded")
	flags.StringVar(&opts.config, "config", "", "connectors YAML path; defaults to TIP_CONNECTORS_FILE")

	cmd.AddCommand(
		newRunWSBCmd(opts),
		newRunRedditCmd(opts),
		newRunEdgarCmd(opts),
		newRunConnectorLoopCmd(opts),
		newDispatchOutboxCmd(opts),
		newReplayCmd(),
		newRunConsumerCmd(opts),
		newLookupCIKCmd(opts),
		newServeMetricsCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, loggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

// loadSettings resolves and validates process configuration before any
// command dials a dependency.
func loadSettings(logger *log.Logger) (config.Settings, error) {
	settings := config.FromEnv()
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	logger.Printf("configuration initialised: %s", settings)
	return settings, nil
}

func initTelemetry(ctx context.Context, settings config.Settings, logger *log.Logger) (*telemetry.Provider, *telemetry.PipelineMetrics, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Environment = string(settings.Env)
	if settings.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = settings.OTLPEndpoint
	}

	provider, err := telemetry.NewProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	metrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		shutdownTelemetry(provider, logger)
		return nil, nil, err
	}
	return provider, metrics, nil
}

func shutdownTelemetry(provider *telemetry.Provider, logger *log.Logger) {
	if provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
}

// openStore dials Postgres and wires the repository bundle plus pool gauges.
func openStore(ctx context.Context, settings config.Settings) (*pgxpool.Pool, *postgres.Store, error) {
	pool, err := persistence.Connect(ctx, settings.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	postgres.ObservePoolMetrics(pool, "primary")
	return pool, postgres.New(pool), nil
}

// openArchive wires the S3-backed blob store using the shared AWS config.
func openArchive(ctx context.Context, settings config.Settings) (*archive.Store, error) {
	awsCfg, err := awsconn.Load(ctx, settings.AWSRegion)
	if err != nil {
		return nil, err
	}
	return archive.NewStore(awsconn.NewS3(awsCfg, settings.AWSEndpointURL), settings.S3Bucket), nil
}

// openQueue wires the event queue. Callers must have checked RequireQueue.
func openQueue(ctx context.Context, settings config.Settings, queueOpts bus.SQSOptions) (*bus.SQSQueue, error) {
	awsCfg, err := awsconn.Load(ctx, settings.AWSRegion)
	if err != nil {
		return nil, err
	}
	return bus.NewSQSQueue(awsconn.NewSQS(awsCfg, settings.AWSEndpointURL), settings.QueueURL, queueOpts), nil
}
