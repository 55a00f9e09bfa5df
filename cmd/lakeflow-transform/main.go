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
	"github.com/lsm/lakeflow/internal/enrich"
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
	logger := observability.NewLogger("lakeflow-transform", observability.GetLogLevel(""))
	slog.SetDefault(logger)

	settings := config.Default()
	if path := os.Getenv("LAKEFLOW_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		settings = loaded
	}
	if topic := os.Getenv("LAKEFLOW_NOTIFY_TOPIC"); topic != "" {
		settings.Stream.NotifyTopic = topic
	}
	if brokers := os.Getenv("LAKEFLOW_BROKERS"); brokers != "" {
		settings.Stream.Brokers = splitList(brokers)
	}

	metricsAddr := getenv("LAKEFLOW_METRICS_ADDR", ":9091")

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

	tracer, shutdownTracing, err := tracing.Initialize(tracing.GetConfig("lakeflow-transform"), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := newZoneStore(ctx, settings)
	if err != nil {
		return err
	}

	audit := newAuditStore(ctx, logger)
	defer closeAudit(audit, logger)

	processor, err := enrich.NewProcessor(enrich.Config{
		Store:        store,
		Audit:        audit,
		SourceBucket: settings.Storage.RawBucket,
		DestBucket:   settings.Storage.ProcessedBucket,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       tracer,
	})
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}

	consumer, err := stream.NewConsumer(stream.ConsumerConfig{
		Cluster:       &stream.ClusterConfig{Brokers: settings.Stream.Brokers},
		Topic:         settings.Stream.NotifyTopic,
		ConsumerGroup: getenv("LAKEFLOW_CONSUMER_GROUP", "lakeflow-transform"),
		StartOffset:   os.Getenv("LAKEFLOW_START_OFFSET"),
	}, logger)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer func() {
		_ = consumer.Close()
	}()

	health.SetReady(true)
	logger.Info("transform service starting",
		"notify_topic", settings.Stream.NotifyTopic,
		"raw_bucket", settings.Storage.RawBucket,
		"processed_bucket", settings.Storage.ProcessedBucket,
	)

	runErr := consumer.Run(ctx, func(ctx context.Context, records []stream.Record) error {
		var succeeded, failed int
		for _, rec := range records {
			payload, err := rec.Payload()
			if err != nil {
				failed++
				logger.Error("decode notification payload", "error", err)
				continue
			}
			oc, err := notify.Decode(payload)
			if err != nil {
				failed++
				logger.Error("decode notification", "error", err)
				continue
			}
			if _, err := processor.ProcessObject(ctx, oc.Key); err != nil {
				failed++
				logger.Error("process object", "key", oc.Key, "error", err)
				continue
			}
			succeeded++
		}
		logger.Info("notification batch handled", "succeeded", succeeded, "failed", failed)
		return nil
	})

	health.SetReady(false)

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

// zoneStore reads raw-zone objects from the source bucket and writes
// processed-zone objects to the destination bucket.
type zoneStore struct {
	raw       *storage.Client
	processed *storage.Client
}

func (z *zoneStore) Get(ctx context.Context, key string) ([]byte, error) {
	return z.raw.Get(ctx, key)
}

func (z *zoneStore) Put(ctx context.Context, key string, body []byte, meta storage.ObjectMeta) error {
	return z.processed.Put(ctx, key, body, meta)
}

func newZoneStore(ctx context.Context, settings *config.Settings) (storage.ObjectStore, error) {
	cfg := storage.MinioConfig{
		Endpoint:  getenv("LAKEFLOW_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: os.Getenv("LAKEFLOW_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("LAKEFLOW_MINIO_SECRET_KEY"),
		UseTLS:    os.Getenv("LAKEFLOW_MINIO_TLS") == "true",
	}

	cfg.Bucket = settings.Storage.RawBucket
	raw, err := storage.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("raw object store: %w", err)
	}

	cfg.Bucket = settings.Storage.ProcessedBucket
	processed, err := storage.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("processed object store: %w", err)
	}
	if err := processed.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	return &zoneStore{raw: raw, processed: processed}, nil
}

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
