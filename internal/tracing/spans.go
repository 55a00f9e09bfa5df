package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span name constants for consistent span naming.
const (
	SpanIngestBatch   = "lakeflow.ingest.batch"
	SpanObjectWrite   = "lakeflow.storage.put"
	SpanTransform     = "lakeflow.transform"
	SpanStreamPublish = "lakeflow.stream.publish"
)

// Attribute key constants for consistent span attributes.
const (
	AttrBatchID   = "lakeflow.batch.id"
	AttrShardID   = "lakeflow.shard.id"
	AttrPartition = "lakeflow.partition"
	AttrObjectKey = "lakeflow.object.key"
	AttrZone      = "lakeflow.zone"
	AttrRecords   = "lakeflow.records"
)

// StartSpan starts a new span with the given name and options.
// If tracer is nil, returns a no-op span.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// SetSpanError records an error on the span and sets the status to Error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span status as OK.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// BatchIDAttr returns a batch id span attribute.
func BatchIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrBatchID, id)
}

// PartitionAttr returns a partition span attribute.
func PartitionAttr(p string) attribute.KeyValue {
	return attribute.String(AttrPartition, p)
}

// ObjectKeyAttr returns an object key span attribute.
func ObjectKeyAttr(key string) attribute.KeyValue {
	return attribute.String(AttrObjectKey, key)
}

// RecordsAttr returns a record count span attribute.
func RecordsAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrRecords, n)
}
