package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/lakeflow/internal/event"
	"github.com/lsm/lakeflow/internal/metadata"
	"github.com/lsm/lakeflow/internal/observability"
	"github.com/lsm/lakeflow/internal/storage"
	"github.com/lsm/lakeflow/internal/tracing"
)

// Result summarizes one transform invocation.
type Result struct {
	Skipped        bool   // object was not a raw-zone JSON object
	SourceKey      string
	DestinationKey string
	Records        int // records transformed and written
	Failed         int // records lost to parse or transform failures
}

// Config holds transform processor dependencies.
type Config struct {
	Store        storage.ObjectStore
	Audit        metadata.Store
	SourceBucket string
	DestBucket   string
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	Tracer       trace.Tracer
}

// Processor reads a raw-zone object, enriches every record in it, and
// writes the result to the processed zone with a transform audit entry.
type Processor struct {
	store        storage.ObjectStore
	audit        metadata.Store
	sourceBucket string
	destBucket   string
	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       trace.Tracer
	now          func() time.Time
}

// NewProcessor creates a Processor. The object store is required; a
// missing audit store degrades to a warning-logging noop.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = metadata.NewNoopStore(cfg.Logger)
	}

	return &Processor{
		store:        cfg.Store,
		audit:        cfg.Audit,
		sourceBucket: cfg.SourceBucket,
		destBucket:   cfg.DestBucket,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		now:          time.Now,
	}, nil
}

// ProcessObject enriches one raw-zone object. Objects outside the raw
// zone are skipped. A parse or transform failure drops that record
// only; sibling records still reach the processed zone. Read and write
// failures fail the whole invocation.
func (p *Processor) ProcessObject(ctx context.Context, key string) (Result, error) {
	if !storage.IsRawObject(key) {
		p.logger.Info("skipping object outside raw zone", "key", key)
		return Result{Skipped: true, SourceKey: key}, nil
	}

	batchID := uuid.NewString()
	start := p.now()

	ctx, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanTransform,
		trace.WithAttributes(tracing.BatchIDAttr(batchID), tracing.ObjectKeyAttr(key)),
	)
	defer span.End()

	p.logger.Info("transforming object", "batch_id", batchID, "key", key)

	body, err := p.store.Get(ctx, key)
	if err != nil {
		err = fmt.Errorf("read %s: %w", key, err)
		tracing.SetSpanError(span, err)
		p.countTransformFailure()
		return Result{SourceKey: key}, err
	}

	result := Result{SourceKey: key}
	now := p.now()
	var transformed []map[string]any

	for _, line := range strings.Split(string(body), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			result.Failed++
			p.logger.Warn("unparseable record", "batch_id", batchID, "error", err)
			p.countRecord("failed")
			continue
		}
		out, err := TransformRecord(record, now)
		if err != nil {
			result.Failed++
			p.logger.Warn("transform record", "batch_id", batchID, "error", err)
			p.countRecord("failed")
			continue
		}
		transformed = append(transformed, out)
		p.countRecord("transformed")
	}

	if len(transformed) == 0 {
		p.logger.Warn("no records transformed", "batch_id", batchID, "key", key, "failed", result.Failed)
		tracing.SetSpanOK(span)
		return result, nil
	}

	destKey := storage.ProcessedKey(key, now)
	if err := p.writeObject(ctx, destKey, key, transformed, now); err != nil {
		tracing.SetSpanError(span, err)
		p.countTransformFailure()
		return result, err
	}
	result.Records = len(transformed)
	result.DestinationKey = destKey

	sourceRef := objectRef(p.sourceBucket, key)
	entry := metadata.TransformEntry{
		BatchID:        batchID,
		ShardID:        storage.SourceShard(sourceRef),
		ProcessedAt:    event.FormatTimestamp(p.now()),
		SourceKey:      sourceRef,
		DestinationKey: objectRef(p.destBucket, destKey),
		RecordCount:    len(transformed),
		Type:           "event_enrichment",
		Version:        Version,
		Stage:          "transformed",
	}
	if err := p.audit.SaveTransform(ctx, entry); err != nil {
		p.logger.Warn("save transform metadata", "batch_id", batchID, "error", err)
	}

	if p.metrics != nil {
		p.metrics.BatchDuration.WithLabelValues("transform").Observe(p.now().Sub(start).Seconds())
	}
	tracing.SetSpanOK(span)

	p.logger.Info("transform complete",
		"batch_id", batchID,
		"source_key", key,
		"destination_key", destKey,
		"records", result.Records,
		"failed", result.Failed,
	)
	return result, nil
}

func (p *Processor) writeObject(ctx context.Context, destKey, sourceKey string, records []map[string]any, now time.Time) error {
	lines := make([]string, len(records))
	for i, m := range records {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		lines[i] = string(b)
	}
	body := []byte(strings.Join(lines, "\n"))

	meta := storage.ObjectMeta{
		"record_count":           strconv.Itoa(len(records)),
		"source_key":             sourceKey,
		"transformed_at":         event.FormatTimestamp(now),
		"transformation_version": Version,
	}
	if err := p.store.Put(ctx, destKey, body, meta); err != nil {
		if p.metrics != nil {
			p.metrics.WriteFailures.WithLabelValues("processed").Inc()
		}
		return fmt.Errorf("write %s: %w", destKey, err)
	}

	if p.metrics != nil {
		p.metrics.ObjectsWritten.WithLabelValues("processed").Inc()
		p.metrics.BytesWritten.WithLabelValues("processed").Add(float64(len(body)))
	}
	p.logger.Info("object written", "key", destKey, "records", len(records))
	return nil
}

func (p *Processor) countRecord(status string) {
	if p.metrics != nil {
		p.metrics.RecordsTotal.WithLabelValues("transform", status).Inc()
	}
}

func (p *Processor) countTransformFailure() {
	if p.metrics != nil {
		p.metrics.TransformFailures.Inc()
	}
}

// objectRef prefixes a key with its bucket when one is configured.
func objectRef(bucket, key string) string {
	if bucket == "" {
		return key
	}
	return bucket + "/" + key
}
