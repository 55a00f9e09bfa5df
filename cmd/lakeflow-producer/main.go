package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lsm/lakeflow/internal/config"
	"github.com/lsm/lakeflow/internal/event"
	"github.com/lsm/lakeflow/internal/observability"
	"github.com/lsm/lakeflow/internal/producer"
	"github.com/lsm/lakeflow/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("lakeflow-producer", flag.ExitOnError)
	configPath := fs.String("config", "", "path to settings YAML (optional)")
	topic := fs.String("stream", "", "event stream topic (required unless set in config)")
	brokers := fs.String("brokers", "", "comma-separated broker list")
	rate := fs.Float64("rate", 0, "events per second")
	duration := fs.Duration("duration", 0, "how long to produce")
	batchSize := fs.Int("batch-size", 0, "records per publish")
	logLevel := fs.String("log-level", "", "debug, info, warn, or error")
	verbose := fs.Bool("verbose", false, "shorthand for -log-level debug")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	level := observability.GetLogLevel(*logLevel)
	if *verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewLogger("lakeflow-producer", level)

	settings := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		settings = loaded
	}

	// Flags override the settings file.
	if *topic != "" {
		settings.Stream.Topic = *topic
	}
	if *brokers != "" {
		settings.Stream.Brokers = strings.Split(*brokers, ",")
	}
	if *rate > 0 {
		settings.Producer.Rate = *rate
	}
	if *batchSize > 0 {
		settings.Producer.BatchSize = *batchSize
	}
	runFor := *duration
	if runFor == 0 {
		d, err := settings.Producer.RunDuration()
		if err != nil {
			return err
		}
		runFor = d
	}

	if settings.Stream.Topic == "" {
		return fmt.Errorf("stream topic is required (use -stream or the config file)")
	}

	cluster := &stream.ClusterConfig{Brokers: settings.Stream.Brokers}
	pub, err := stream.NewPublisher(cluster, settings.Stream.Topic, logger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer func() {
		_ = pub.Close()
	}()

	prod, err := producer.New(event.NewGenerator(), pub, producer.Config{
		Rate:      settings.Producer.Rate,
		Duration:  runFor,
		BatchSize: settings.Producer.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("producing events",
		"topic", settings.Stream.Topic,
		"brokers", settings.Stream.Brokers,
		"rate", settings.Producer.Rate,
		"duration", runFor.String(),
		"batch_size", settings.Producer.BatchSize,
	)

	start := time.Now()
	stats := prod.Run(ctx)

	fmt.Printf("Events sent:   %d\n", stats.Sent)
	fmt.Printf("Events failed: %d\n", stats.Failed)
	fmt.Printf("Bytes sent:    %d\n", stats.TotalBytes)
	fmt.Printf("Elapsed:       %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Success rate:  %.2f%%\n", stats.SuccessRate())

	if stats.Sent == 0 && stats.Failed > 0 {
		return fmt.Errorf("all publishes failed")
	}
	return nil
}
