package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"github.com/VanDung-dev/HieraBank-Engine/api"
	"github.com/VanDung-dev/HieraBank-Engine/arrow"
	"github.com/VanDung-dev/HieraBank-Engine/bank"
	"github.com/VanDung-dev/HieraBank-Engine/config"
	"github.com/VanDung-dev/HieraBank-Engine/engine"
	"github.com/VanDung-dev/HieraBank-Engine/network"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "HieraBank-Engine"
)

const usage = "Usage: bankserver [flags] <# of worker threads> <# of accounts> <output file>"

func main() {
	defaultLogger(zapcore.InfoLevel)

	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		zap.L().Error("Invalid configuration.", zap.Error(err))
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	level, _ := cfg.Level()
	syncLogger := defaultLogger(level)
	zap.L().Info("Starting...",
		zap.String("name", Name),
		zap.String("version", Version),
		zap.Int("workers", cfg.Workers),
		zap.Int("accounts", cfg.Accounts),
	)

	ctx, cancel := context.WithCancel(context.Background())
	handleTerm(cancel)

	err = run(ctx, cfg, os.Stdin, os.Stdout)
	cancel()
	if err != nil {
		zap.L().Error("Server failed.", zap.Error(err))
		_ = syncLogger()
		os.Exit(1)
	}
	zap.L().Info("Done.")
	_ = syncLogger()
}

// parseArgs builds a validated Config from the positional arguments and
// flags in args.
func parseArgs(args []string, output io.Writer) (*config.Config, error) {
	cfg := config.Default()

	fs := flag.NewFlagSet("bankserver", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintln(output, usage)
		fs.PrintDefaults()
	}
	fs.Int64Var(&cfg.InitialBalance, "initial-balance", cfg.InitialBalance, "Opening balance of every account.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error).")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address.")
	fs.StringVar(&cfg.PublishAddr, "publish-addr", cfg.PublishAddr, "Publish results on this ZeroMQ endpoint.")
	fs.StringVar(&cfg.ArrowPath, "arrow-out", cfg.ArrowPath, "Also write results as an Arrow IPC stream to this file.")
	fs.IntVar(&cfg.ArrowBatchSize, "arrow-batch", cfg.ArrowBatchSize, "Results per Arrow record batch.")
	fs.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Write final balances as Arrow IPC to this file.")
	fs.BoolVar(&cfg.Ack, "ack", cfg.Ack, "Acknowledge accepted requests on stdout.")

	// flag stops at the first positional argument; resume after each one
	// so flags may also follow them.
	var positional []string
	for rest := args; ; {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}
	if len(positional) != 3 {
		return nil, errors.Wrapf(config.ErrInvalidConfig, "expected 3 arguments, got %d", len(positional))
	}

	var err error
	if cfg.Workers, err = strconv.Atoi(positional[0]); err != nil {
		return nil, errors.Wrapf(config.ErrInvalidConfig, "worker count %q", positional[0])
	}
	if cfg.Accounts, err = strconv.Atoi(positional[1]); err != nil {
		return nil, errors.Wrapf(config.ErrInvalidConfig, "account count %q", positional[1])
	}
	cfg.OutputPath = positional[2]

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run wires the engine, feeds it commands from in and tears everything
// down once the pool has drained.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	store := bank.NewMemoryStore(cfg.InitialBalance)
	if err := store.Init(cfg.Accounts); err != nil {
		return err
	}
	defer store.Teardown()

	metrics := api.NewMetrics("bank")
	if cfg.MetricsAddr != "" {
		server := api.NewMetricsServer(cfg.MetricsAddr, metrics)
		server.StartAsync(func(err error) {
			zap.L().Error("Metrics server failed.", zap.Error(err))
		})
		defer func() {
			if err := server.Stop(); err != nil {
				zap.L().Warn("Failed to stop metrics server.", zap.Error(err))
			}
		}()
		zap.L().Info("Metrics server started.", zap.String("addr", cfg.MetricsAddr))
	}

	sink, text, err := openSinks(cfg, out)
	if err != nil {
		return err
	}

	queue := engine.NewRequestQueue()
	pool := engine.NewWorkerPool("bank", cfg.Workers, queue,
		engine.NewProcessor(store, engine.NewLockTable(cfg.Accounts)), sink,
		engine.WithLogger(zap.L().Named("pool")),
		engine.WithRecorder(metrics),
	)

	var ack io.Writer
	switch {
	case !cfg.Ack:
	case cfg.OutputPath == "-":
		// Acks share stdout with results and must not split a result line.
		ack = text.LineWriter()
	default:
		ack = out
	}
	producer := engine.NewProducer(queue, cfg.Accounts, ack, zap.L().Named("producer"), metrics)

	produced := make(chan error, 1)
	go func() {
		produced <- producer.Run(ctx, in)
	}()

	var inputErr error
	select {
	case inputErr = <-produced:
	case <-ctx.Done():
		// The producer may be blocked reading input; stop admitting work
		// without waiting for it.
		queue.SignalShutdown()
	}
	pool.Wait()

	stats := pool.GetStats()
	zap.L().Info("Worker pool drained.",
		zap.Int("accepted", producer.Accepted()),
		zap.Int("rejected", producer.Rejected()),
		zap.Int64("completed", stats.Completed),
		zap.Int64("aborted", stats.Aborted),
		zap.Int64("failed", stats.Failed),
		zap.Int64("sink_errors", stats.SinkErrors),
	)

	var snapErr error
	if cfg.SnapshotPath != "" {
		snapErr = writeSnapshot(cfg.SnapshotPath, store.Snapshot())
		if snapErr == nil {
			zap.L().Info("Balance snapshot written.", zap.String("path", cfg.SnapshotPath))
		}
	}

	store.Teardown()

	var sinkErr error
	if stats.SinkErrors > 0 {
		sinkErr = errors.Errorf("%d results could not be written", stats.SinkErrors)
	}
	closeErr := errors.Wrap(sink.Close(), "failed to close result sinks")
	return multierr.Combine(inputErr, snapErr, sinkErr, closeErr)
}

// openSinks opens the text sink and any optional sinks behind one
// engine.Sink. The text sink is also returned on its own.
func openSinks(cfg *config.Config, stdout io.Writer) (engine.Sink, *engine.TextSink, error) {
	var sinks engine.MultiSink
	fail := func(err error) (engine.Sink, *engine.TextSink, error) {
		_ = sinks.Close()
		return nil, nil, err
	}

	var text *engine.TextSink
	if cfg.OutputPath == "-" {
		// Hide Close so the sink never closes stdout.
		text = engine.NewTextSink(struct{ io.Writer }{stdout})
	} else {
		f, err := os.Create(cfg.OutputPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open output file")
		}
		text = engine.NewTextSink(f)
	}
	sinks = append(sinks, text)

	if cfg.ArrowPath != "" {
		f, err := os.Create(cfg.ArrowPath)
		if err != nil {
			return fail(errors.Wrap(err, "failed to open arrow output"))
		}
		sinks = append(sinks, arrow.NewResultSink(f, cfg.ArrowBatchSize))
	}

	if cfg.PublishAddr != "" {
		publisher := network.NewPublisher(cfg.PublishAddr, zap.L().Named("publisher"))
		if err := publisher.Start(); err != nil {
			return fail(err)
		}
		sinks = append(sinks, publisher)
	}

	if len(sinks) == 1 {
		return text, text, nil
	}
	return sinks, text, nil
}

func writeSnapshot(path string, balances []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to open snapshot file")
	}
	if err := arrow.WriteSnapshot(f, balances); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "failed to close snapshot file")
}

// defaultLogger installs a development zap logger at level as the global
// logger and returns its Sync.
func defaultLogger(level zapcore.Level) func() error {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level.SetLevel(level)
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := logConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(l)
	zap.RedirectStdLog(l.Named("stdlog"))
	return l.Sync
}

// handleTerm cancels on the first termination signal and exits on the
// second.
func handleTerm(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, unix.SIGTERM, unix.SIGINT)
	go func() {
		s := <-signals
		zap.L().Warn("Shutting down.", zap.String("signal", unix.SignalName(s.(unix.Signal))))
		cancel()

		s = <-signals
		zap.L().Fatal("Exiting!", zap.String("signal", unix.SignalName(s.(unix.Signal))))
	}()
}
