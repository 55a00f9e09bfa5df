package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/lakeflow/internal/event"
	"github.com/lsm/lakeflow/internal/metadata"
	"github.com/lsm/lakeflow/internal/observability"
	"github.com/lsm/lakeflow/internal/storage"
	"github.com/lsm/lakeflow/internal/stream"
	"github.com/lsm/lakeflow/internal/tracing"
)

// Stats summarizes one ingest invocation. Written + FailedWrites always
// equals Processed.
type Stats struct {
	Processed    int   // records that decoded and validated
	Invalid      int   // records dropped by decode or validation
	Written      int   // records written to the raw zone
	FailedWrites int   // records lost to partition or write failures
	Partitions   int   // distinct partitions touched
	BytesWritten int64 // object body bytes written

	WrittenKeys []string // raw-zone keys written this invocation
}

// Config holds ingest processor dependencies.
type Config struct {
	Store      storage.ObjectStore
	Audit      metadata.Store
	Validation bool
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Tracer     trace.Tracer
}

// Processor turns delivered stream batches into partitioned raw-zone
// objects plus one audit entry per invocation.
type Processor struct {
	store      storage.ObjectStore
	audit      metadata.Store
	validation atomic.Bool
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
	now        func() time.Time
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

	p := &Processor{
		store:   cfg.Store,
		audit:   cfg.Audit,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		now:     time.Now,
	}
	p.validation.Store(cfg.Validation)
	return p, nil
}

// SetValidation toggles schema validation at runtime.
func (p *Processor) SetValidation(enabled bool) {
	p.validation.Store(enabled)
}

// ProcessBatch handles one delivered batch of stream records. Decode and
// validation failures drop single records; a write failure for one
// partition group fails only that group's records. The invocation never
// returns an error: outcomes are reported through Stats.
func (p *Processor) ProcessBatch(ctx context.Context, records []stream.Record) Stats {
	start := p.now()
	batchID := uuid.NewString()

	ctx, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanIngestBatch,
		trace.WithAttributes(tracing.BatchIDAttr(batchID), tracing.RecordsAttr(len(records))),
	)
	defer span.End()

	p.logger.Info("processing batch", "batch_id", batchID, "records", len(records))

	var stats Stats
	var valid []map[string]any

	for _, rec := range records {
		m, err := p.processRecord(rec)
		if err != nil {
			stats.Invalid++
			p.logger.Warn("invalid record", "batch_id", batchID, "reason", err)
			p.countRecord("invalid")
			continue
		}
		valid = append(valid, m)
		p.countRecord("valid")
	}
	stats.Processed = len(valid)

	p.writeGroups(ctx, batchID, valid, &stats)

	if len(records) > 0 {
		entry := metadata.BatchEntry{
			BatchID:        batchID,
			ShardID:        records[0].ShardID(),
			ProcessedAt:    event.FormatTimestamp(p.now()),
			TotalRecords:   stats.Written + stats.FailedWrites,
			SuccessRecords: stats.Written,
			FailedRecords:  stats.FailedWrites,
			PartitionCount: stats.Partitions,
		}
		if err := p.audit.SaveBatch(ctx, entry); err != nil {
			p.logger.Warn("save batch metadata", "batch_id", batchID, "error", err)
		}
	}

	if p.metrics != nil {
		p.metrics.BatchDuration.WithLabelValues("ingest").Observe(p.now().Sub(start).Seconds())
	}
	tracing.SetSpanOK(span)

	p.logger.Info("processing complete",
		"batch_id", batchID,
		"processed", stats.Processed,
		"invalid", stats.Invalid,
		"written", stats.Written,
		"failed_writes", stats.FailedWrites,
		"partitions", stats.Partitions,
	)

	return stats
}

// processRecord decodes one stream record and stamps it with transport
// metadata. The returned error invalidates this record only.
func (p *Processor) processRecord(rec stream.Record) (map[string]any, error) {
	payload, err := rec.Payload()
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	if p.validation.Load() {
		if err := Validate(m); err != nil {
			return nil, err
		}
	}

	m["stream_metadata"] = map[string]any{
		"sequence_number":               rec.SequenceNumber,
		"partition_key":                 rec.PartitionKey,
		"approximate_arrival_timestamp": rec.ApproximateArrivalTimestamp,
	}
	return m, nil
}

// writeGroups groups valid records by partition and writes one uniquely
// named object per group.
func (p *Processor) writeGroups(ctx context.Context, batchID string, records []map[string]any, stats *Stats) {
	groups := make(map[string][]map[string]any)
	for _, m := range records {
		ts, _ := m["timestamp"].(string)
		et, _ := m["event_type"].(string)
		partition, err := PartitionPath(ts, et)
		if err != nil {
			stats.FailedWrites++
			p.logger.Error("partition record", "batch_id", batchID, "error", err)
			continue
		}
		groups[partition] = append(groups[partition], m)
	}
	stats.Partitions = len(groups)

	// Deterministic write order keeps logs and tests stable.
	partitions := make([]string, 0, len(groups))
	for partition := range groups {
		partitions = append(partitions, partition)
	}
	sort.Strings(partitions)

	for _, partition := range partitions {
		group := groups[partition]
		key, n, err := p.writeGroup(ctx, partition, group)
		if err != nil {
			stats.FailedWrites += len(group)
			p.logger.Error("write partition", "batch_id", batchID, "partition", partition, "error", err)
			if p.metrics != nil {
				p.metrics.WriteFailures.WithLabelValues("raw").Inc()
			}
			continue
		}
		stats.Written += len(group)
		stats.WrittenKeys = append(stats.WrittenKeys, key)
		stats.BytesWritten += n
	}
}

func (p *Processor) writeGroup(ctx context.Context, partition string, group []map[string]any) (string, int64, error) {
	now := p.now()
	key := storage.RawKey(partition, now)

	ctx, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanObjectWrite,
		trace.WithAttributes(tracing.PartitionAttr(partition), tracing.ObjectKeyAttr(key), tracing.RecordsAttr(len(group))),
	)
	defer span.End()

	body, err := marshalLines(group)
	if err != nil {
		tracing.SetSpanError(span, err)
		return "", 0, err
	}

	meta := storage.ObjectMeta{
		"record_count": strconv.Itoa(len(group)),
		"partition":    partition,
		"processed_at": event.FormatTimestamp(now),
	}
	if err := p.store.Put(ctx, key, body, meta); err != nil {
		tracing.SetSpanError(span, err)
		return "", 0, err
	}

	if p.metrics != nil {
		p.metrics.ObjectsWritten.WithLabelValues("raw").Inc()
		p.metrics.BytesWritten.WithLabelValues("raw").Add(float64(len(body)))
	}
	p.logger.Info("partition written", "key", key, "records", len(group))
	tracing.SetSpanOK(span)
	return key, int64(len(body)), nil
}

func (p *Processor) countRecord(status string) {
	if p.metrics != nil {
		p.metrics.RecordsTotal.WithLabelValues("ingest", status).Inc()
	}
}

// marshalLines renders records as newline-delimited JSON.
func marshalLines(records []map[string]any) ([]byte, error) {
	lines := make([]string, len(records))
	for i, m := range records {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		lines[i] = string(b)
	}
	return []byte(strings.Join(lines, "\n")), nil
}
