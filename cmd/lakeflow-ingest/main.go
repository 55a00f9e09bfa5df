package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lsm/lakeflow/internal/config"
	"github.com/lsm/lakeflow/internal/ingest"
	"github.com/lsm/lakeflow/internal/metadata"
	"github.com/lsm/lakeflow/internal/notify"
	"github.com/lsm/lakeflow/internal/observability"
	"github.com/lsm/lakeflow/internal/storage"
	"github.com/lsm/lakeflow/internal/stream"
	"github.com/lsm/lakeflow/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := observability.NewLogger("lakeflow-ingest", observability.GetLogLevel(""))
	slog.SetDefault(logger)

	settings := config.Default()
	var loader *config.Loader
	if path := os.Getenv("LAKEFLOW_CONFIG"); path != "" {
		loader = config.NewLoader(path, logger)
		loaded, err := loader.Load()
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		settings = loaded
	}
	applyStreamEnv(settings)

	metricsAddr := getenv("LAKEFLOW_METRICS_ADDR", ":9090")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	health := observability.NewHealthServer()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("GET /healthz", health.Handler())
	mux.Handle("GET /readyz", health.Handler())

	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		logger.Info("metrics server starting", "addr", metricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer, shutdownTracing, err := tracing.Initialize(tracing.GetConfig("lakeflow-ingest"), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := storage.NewClient(storage.MinioConfig{
		Endpoint:  getenv("LAKEFLOW_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: os.Getenv("LAKEFLOW_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("LAKEFLOW_MINIO_SECRET_KEY"),
		UseTLS:    os.Getenv("LAKEFLOW_MINIO_TLS") == "true",
		Bucket:    settings.Storage.RawBucket,
	})
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	audit := newAuditStore(ctx, logger)
	defer closeAudit(audit, logger)

	processor, err := ingest.NewProcessor(ingest.Config{
		Store:      store,
		Audit:      audit,
		Validation: settings.ValidationEnabled(),
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}

	cluster := &stream.ClusterConfig{Brokers: settings.Stream.Brokers}

	notifier, err := stream.NewPublisher(cluster, settings.Stream.NotifyTopic, logger)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}
	defer func() {
		_ = notifier.Close()
	}()

	consumer, err := stream.NewConsumer(stream.ConsumerConfig{
		Cluster:       cluster,
		Topic:         settings.Stream.Topic,
		ConsumerGroup: settings.Stream.ConsumerGroup,
		StartOffset:   os.Getenv("LAKEFLOW_START_OFFSET"),
	}, logger)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer func() {
		_ = consumer.Close()
	}()

	// Settings watcher keeps the validation toggle live without a
	// restart.
	watchDone := make(chan struct{})
	if loader != nil {
		loader.OnChange(func(s *config.Settings) {
			processor.SetValidation(s.ValidationEnabled())
			logger.Info("settings reloaded", "validation", s.ValidationEnabled())
		})
		go func() {
			if err := loader.Watch(watchDone); err != nil {
				logger.Error("settings watcher error", "error", err)
			}
		}()
	}

	health.SetReady(true)
	logger.Info("ingest service starting",
		"topic", settings.Stream.Topic,
		"group", settings.Stream.ConsumerGroup,
		"raw_bucket", settings.Storage.RawBucket,
	)

	rawBucket := settings.Storage.RawBucket
	runErr := consumer.Run(ctx, func(ctx context.Context, records []stream.Record) error {
		stats := processor.ProcessBatch(ctx, records)
		for _, key := range stats.WrittenKeys {
			payload, err := notify.Encode(notify.ObjectCreated{
				Bucket: rawBucket,
				Key:    key,
			})
			if err != nil {
				logger.Error("encode notification", "key", key, "error", err)
				continue
			}
			if err := notifier.Publish(ctx, key, payload); err != nil {
				logger.Error("publish notification", "key", key, "error", err)
			}
		}
		return nil
	})

	health.SetReady(false)
	close(watchDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// newAuditStore connects to Redis when an address is configured,
// otherwise falls back to the warning-logging noop store.
func newAuditStore(ctx context.Context, logger *slog.Logger) metadata.Store {
	addr := os.Getenv("LAKEFLOW_REDIS_ADDR")
	if addr == "" {
		return metadata.NewNoopStore(logger)
	}

	store, err := metadata.NewRedisStore(metadata.RedisConfig{
		Addr:     addr,
		Password: os.Getenv("LAKEFLOW_REDIS_PASSWORD"),
	})
	if err != nil {
		logger.Warn("metadata store unavailable, auditing disabled", "error", err)
		return metadata.NewNoopStore(logger)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("metadata store unreachable, auditing disabled", "addr", addr, "error", err)
		return metadata.NewNoopStore(logger)
	}

	logger.Info("metadata store connected", "addr", addr)
	return store
}

func closeAudit(store metadata.Store, logger *slog.Logger) {
	if rs, ok := store.(*metadata.RedisStore); ok {
		if err := rs.Close(); err != nil {
			logger.Error("close metadata store", "error", err)
		}
	}
}

func applyStreamEnv(s *config.Settings) {
	if topic := os.Getenv("LAKEFLOW_TOPIC"); topic != "" {
		s.Stream.Topic = topic
	}
	if brokers := os.Getenv("LAKEFLOW_BROKERS"); brokers != "" {
		s.Stream.Brokers = splitList(brokers)
	}
	if group := os.Getenv("LAKEFLOW_CONSUMER_GROUP"); group != "" {
		s.Stream.ConsumerGroup = group
	}
	if topic := os.Getenv("LAKEFLOW_NOTIFY_TOPIC"); topic != "" {
		s.Stream.NotifyTopic = topic
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
