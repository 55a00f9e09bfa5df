// Package integration exercises the ingest and transform stages
// end to end against in-memory stores.
package integration

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/lsm/lakeflow/internal/enrich"
	"github.com/lsm/lakeflow/internal/ingest"
	"github.com/lsm/lakeflow/internal/metadata"
	"github.com/lsm/lakeflow/internal/notify"
	"github.com/lsm/lakeflow/internal/storage"
	"github.com/lsm/lakeflow/internal/stream"
)

type memoryStore struct {
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, key string, body []byte, _ storage.ObjectMeta) error {
	m.objects[key] = body
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, io.EOF
	}
	return body, nil
}

type memoryAudit struct {
	batches    []metadata.BatchEntry
	transforms []metadata.TransformEntry
}

func (m *memoryAudit) SaveBatch(_ context.Context, e metadata.BatchEntry) error {
	m.batches = append(m.batches, e)
	return nil
}

func (m *memoryAudit) SaveTransform(_ context.Context, e metadata.TransformEntry) error {
	m.transforms = append(m.transforms, e)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func streamRecord(t *testing.T, seq string, payload map[string]any) stream.Record {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return stream.Record{
		Data:                        stream.EncodePayload(b),
		SequenceNumber:              seq,
		PartitionKey:                "integration",
		ApproximateArrivalTimestamp: 1705314600,
		EventID:                     "shardId-000000000000:" + seq,
	}
}

// TestPipeline_EndToEnd pushes one transaction through ingest and
// transform and checks the enriched output and both audit entries.
func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	audit := &memoryAudit{}

	ingestProc, err := ingest.NewProcessor(ingest.Config{
		Store:      store,
		Audit:      audit,
		Validation: true,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("ingest processor: %v", err)
	}

	enrichProc, err := enrich.NewProcessor(enrich.Config{
		Store:        store,
		Audit:        audit,
		SourceBucket: "events-raw",
		DestBucket:   "events-processed",
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatalf("enrich processor: %v", err)
	}

	stats := ingestProc.ProcessBatch(ctx, []stream.Record{
		streamRecord(t, "7", map[string]any{
			"event_type": "transaction",
			"timestamp":  "2024-01-15T10:29:00.000000Z",
			"data": map[string]any{
				"transaction_id": "txn-1",
				"amount":         1500.0,
				"currency":       "USD",
				"status":         "completed",
			},
		}),
	})

	if stats.Written != 1 || stats.Invalid != 0 || stats.FailedWrites != 0 {
		t.Fatalf("ingest stats = %+v", stats)
	}
	if len(stats.WrittenKeys) != 1 {
		t.Fatalf("written keys = %v", stats.WrittenKeys)
	}
	rawKey := stats.WrittenKeys[0]
	if !strings.HasPrefix(rawKey, "raw/event_type=transaction/year=2024/month=01/day=15/hour=10/") {
		t.Fatalf("raw key = %q", rawKey)
	}
	if len(audit.batches) != 1 {
		t.Fatalf("batch audit entries = %d", len(audit.batches))
	}

	// Hand the object key over the notification channel the way the
	// services do.
	payload, err := notify.Encode(notify.ObjectCreated{Bucket: "events-raw", Key: rawKey, RecordCount: 1})
	if err != nil {
		t.Fatalf("encode notification: %v", err)
	}
	oc, err := notify.Decode(payload)
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}

	result, err := enrichProc.ProcessObject(ctx, oc.Key)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if result.Records != 1 || result.Failed != 0 {
		t.Fatalf("transform result = %+v", result)
	}
	if !strings.HasPrefix(result.DestinationKey, "processed/event_type=transaction/") {
		t.Fatalf("destination key = %q", result.DestinationKey)
	}

	body, ok := store.objects[result.DestinationKey]
	if !ok {
		t.Fatal("processed object not written")
	}

	var enriched map[string]any
	if err := json.Unmarshal(body, &enriched); err != nil {
		t.Fatalf("unmarshal enriched record: %v", err)
	}

	data, _ := enriched["enriched_data"].(map[string]any)
	if data == nil {
		t.Fatal("missing enriched_data")
	}
	if data["amount_category"] != "large" {
		t.Errorf("amount_category = %v", data["amount_category"])
	}
	if data["is_high_value"] != true {
		t.Errorf("is_high_value = %v", data["is_high_value"])
	}
	if id, _ := enriched["record_id"].(string); len(id) != 16 {
		t.Errorf("record_id = %v", enriched["record_id"])
	}

	sm, _ := enriched["stream_metadata"].(map[string]any)
	if sm == nil {
		t.Fatal("stream_metadata must survive both stages")
	}
	if sm["sequence_number"] != "7" {
		t.Errorf("sequence_number = %v", sm["sequence_number"])
	}

	if len(audit.transforms) != 1 {
		t.Fatalf("transform audit entries = %d", len(audit.transforms))
	}
	entry := audit.transforms[0]
	if entry.SourceKey != "events-raw/"+rawKey {
		t.Errorf("audit source key = %q", entry.SourceKey)
	}
	if entry.RecordCount != 1 {
		t.Errorf("audit record count = %d", entry.RecordCount)
	}
}

// TestPipeline_InvalidRecordsNeverReachProcessedZone feeds a batch with
// one valid and one invalid record and verifies only the valid record
// flows through.
func TestPipeline_InvalidRecordsNeverReachProcessedZone(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	ingestProc, err := ingest.NewProcessor(ingest.Config{
		Store:      store,
		Validation: true,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("ingest processor: %v", err)
	}

	enrichProc, err := enrich.NewProcessor(enrich.Config{
		Store:  store,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("enrich processor: %v", err)
	}

	stats := ingestProc.ProcessBatch(ctx, []stream.Record{
		streamRecord(t, "1", map[string]any{
			"event_type": "metric",
			"timestamp":  "2024-01-15T10:29:00.000000Z",
			"data":       map[string]any{"metric_name": "cpu_usage", "value": 250.0},
		}),
		streamRecord(t, "2", map[string]any{
			"event_type": "bogus",
			"timestamp":  "2024-01-15T10:29:00.000000Z",
			"data":       map[string]any{},
		}),
	})

	if stats.Written != 1 || stats.Invalid != 1 {
		t.Fatalf("ingest stats = %+v", stats)
	}

	result, err := enrichProc.ProcessObject(ctx, stats.WrittenKeys[0])
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if result.Records != 1 {
		t.Fatalf("transform result = %+v", result)
	}

	var enriched map[string]any
	if err := json.Unmarshal(store.objects[result.DestinationKey], &enriched); err != nil {
		t.Fatalf("unmarshal enriched record: %v", err)
	}
	data, _ := enriched["enriched_data"].(map[string]any)
	if data["value_range"] != "high" {
		t.Errorf("value_range = %v", data["value_range"])
	}
	if data["is_anomaly"] != true {
		t.Errorf("is_anomaly = %v", data["is_anomaly"])
	}
}
