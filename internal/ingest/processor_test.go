package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/lsm/lakeflow/internal/metadata"
	"github.com/lsm/lakeflow/internal/storage"
	"github.com/lsm/lakeflow/internal/stream"
)

type storedObject struct {
	body []byte
	meta storage.ObjectMeta
}

type fakeStore struct {
	objects    map[string]storedObject
	failPrefix string // puts under this key prefix fail
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]storedObject)}
}

func (f *fakeStore) Put(_ context.Context, key string, body []byte, meta storage.ObjectMeta) error {
	if f.failPrefix != "" && strings.HasPrefix(key, f.failPrefix) {
		return errors.New("store unavailable")
	}
	f.objects[key] = storedObject{body: body, meta: meta}
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return obj.body, nil
}

type fakeAudit struct {
	batches    []metadata.BatchEntry
	transforms []metadata.TransformEntry
	err        error
}

func (f *fakeAudit) SaveBatch(_ context.Context, e metadata.BatchEntry) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, e)
	return nil
}

func (f *fakeAudit) SaveTransform(_ context.Context, e metadata.TransformEntry) error {
	if f.err != nil {
		return f.err
	}
	f.transforms = append(f.transforms, e)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(t *testing.T, store storage.ObjectStore, audit metadata.Store) *Processor {
	t.Helper()
	p, err := NewProcessor(Config{
		Store:      store,
		Audit:      audit,
		Validation: true,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func streamRecord(t *testing.T, record map[string]any, seq string) stream.Record {
	t.Helper()
	payload, err := json.Marshal(record)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := record["event_id"].(string)
	return stream.Record{
		Data:                        stream.EncodePayload(payload),
		SequenceNumber:              seq,
		PartitionKey:                id,
		ApproximateArrivalTimestamp: 1705314600,
		EventID:                     "shardId-000000000001:" + seq,
	}
}

func eventRecord(id, eventType, timestamp string) map[string]any {
	return map[string]any{
		"event_id":   id,
		"event_type": eventType,
		"timestamp":  timestamp,
		"data":       map[string]any{"value": 42.0},
	}
}

func TestProcessBatch_WritesPartitionedObjects(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	p := newTestProcessor(t, store, audit)

	records := []stream.Record{
		streamRecord(t, eventRecord("e-1", "user_action", "2024-01-15T10:30:00Z"), "1"),
		streamRecord(t, eventRecord("e-2", "user_action", "2024-01-15T10:45:00Z"), "2"),
		streamRecord(t, eventRecord("e-3", "metric", "2024-01-15T11:00:00Z"), "3"),
	}

	stats := p.ProcessBatch(context.Background(), records)

	if stats.Processed != 3 || stats.Invalid != 0 {
		t.Fatalf("processed=%d invalid=%d, want 3/0", stats.Processed, stats.Invalid)
	}
	if stats.Written != 3 || stats.FailedWrites != 0 {
		t.Fatalf("written=%d failed=%d, want 3/0", stats.Written, stats.FailedWrites)
	}
	if stats.Partitions != 2 {
		t.Fatalf("partitions=%d, want 2", stats.Partitions)
	}
	if len(store.objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(store.objects))
	}

	var userActionKey string
	for key := range store.objects {
		if !strings.HasPrefix(key, "raw/") || !strings.HasSuffix(key, ".json") {
			t.Fatalf("object key %q not in raw zone", key)
		}
		if strings.Contains(key, "event_type=user_action/year=2024/month=01/day=15/hour=10") {
			userActionKey = key
		}
	}
	if userActionKey == "" {
		t.Fatal("missing user_action partition object")
	}

	obj := store.objects[userActionKey]
	lines := strings.Split(string(obj.body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 newline-delimited records, got %d", len(lines))
	}
	if obj.meta["record_count"] != "2" {
		t.Fatalf("record_count = %q", obj.meta["record_count"])
	}
	if obj.meta["partition"] != "event_type=user_action/year=2024/month=01/day=15/hour=10" {
		t.Fatalf("partition metadata = %q", obj.meta["partition"])
	}
	if obj.meta["processed_at"] == "" {
		t.Fatal("missing processed_at metadata")
	}
}

func TestProcessBatch_StampsStreamMetadata(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(t, store, &fakeAudit{})

	p.ProcessBatch(context.Background(), []stream.Record{
		streamRecord(t, eventRecord("e-1", "metric", "2024-01-15T10:30:00Z"), "77"),
	})

	if len(store.objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(store.objects))
	}
	for _, obj := range store.objects {
		var m map[string]any
		if err := json.Unmarshal(obj.body, &m); err != nil {
			t.Fatal(err)
		}
		sm, ok := m["stream_metadata"].(map[string]any)
		if !ok {
			t.Fatalf("missing stream_metadata in %v", m)
		}
		if sm["sequence_number"] != "77" {
			t.Errorf("sequence_number = %v", sm["sequence_number"])
		}
		if sm["partition_key"] != "e-1" {
			t.Errorf("partition_key = %v", sm["partition_key"])
		}
		if sm["approximate_arrival_timestamp"] != 1705314600.0 {
			t.Errorf("approximate_arrival_timestamp = %v", sm["approximate_arrival_timestamp"])
		}
	}
}

func TestProcessBatch_DropsUndecodableRecords(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(t, store, &fakeAudit{})

	records := []stream.Record{
		{Data: "!!bad-base64!!", SequenceNumber: "1", EventID: "shardId-000000000001:1"},
		{Data: stream.EncodePayload([]byte("not json")), SequenceNumber: "2", EventID: "shardId-000000000001:2"},
		streamRecord(t, eventRecord("e-3", "metric", "2024-01-15T10:30:00Z"), "3"),
	}

	stats := p.ProcessBatch(context.Background(), records)

	if stats.Invalid != 2 {
		t.Fatalf("invalid=%d, want 2", stats.Invalid)
	}
	if stats.Processed != 1 || stats.Written != 1 {
		t.Fatalf("processed=%d written=%d, want 1/1", stats.Processed, stats.Written)
	}
}

func TestProcessBatch_DropsInvalidRecords(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(t, store, &fakeAudit{})

	records := []stream.Record{
		streamRecord(t, eventRecord("e-1", "not_a_type", "2024-01-15T10:30:00Z"), "1"),
		streamRecord(t, eventRecord("e-2", "metric", "invalid-timestamp"), "2"),
		streamRecord(t, eventRecord("e-3", "metric", "2024-01-15T10:30:00Z"), "3"),
	}

	stats := p.ProcessBatch(context.Background(), records)

	if stats.Invalid != 2 || stats.Processed != 1 {
		t.Fatalf("invalid=%d processed=%d, want 2/1", stats.Invalid, stats.Processed)
	}
}

func TestProcessBatch_ValidationDisabled(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(t, store, &fakeAudit{})
	p.SetValidation(false)

	records := []stream.Record{
		streamRecord(t, eventRecord("e-1", "not_a_type", "2024-01-15T10:30:00Z"), "1"),
	}

	stats := p.ProcessBatch(context.Background(), records)

	if stats.Invalid != 0 || stats.Written != 1 {
		t.Fatalf("invalid=%d written=%d, want 0/1", stats.Invalid, stats.Written)
	}
}

func TestProcessBatch_WriteFailureIsolatedPerPartition(t *testing.T) {
	store := newFakeStore()
	store.failPrefix = "raw/event_type=metric"
	p := newTestProcessor(t, store, &fakeAudit{})

	records := []stream.Record{
		streamRecord(t, eventRecord("e-1", "metric", "2024-01-15T10:30:00Z"), "1"),
		streamRecord(t, eventRecord("e-2", "metric", "2024-01-15T10:31:00Z"), "2"),
		streamRecord(t, eventRecord("e-3", "user_action", "2024-01-15T10:32:00Z"), "3"),
	}

	stats := p.ProcessBatch(context.Background(), records)

	if stats.FailedWrites != 2 {
		t.Fatalf("failed=%d, want 2", stats.FailedWrites)
	}
	if stats.Written != 1 {
		t.Fatalf("written=%d, want 1", stats.Written)
	}
	if stats.Written+stats.FailedWrites != stats.Processed {
		t.Fatal("stats invariant violated: written + failed != processed")
	}
	if len(store.objects) != 1 {
		t.Fatalf("expected surviving partition object, got %d", len(store.objects))
	}
}

func TestProcessBatch_SavesAuditEntry(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	p := newTestProcessor(t, store, audit)

	p.ProcessBatch(context.Background(), []stream.Record{
		streamRecord(t, eventRecord("e-1", "metric", "2024-01-15T10:30:00Z"), "1"),
		streamRecord(t, eventRecord("e-2", "user_action", "2024-01-15T10:30:00Z"), "2"),
	})

	if len(audit.batches) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(audit.batches))
	}
	entry := audit.batches[0]
	if entry.BatchID == "" {
		t.Error("missing batch id")
	}
	if entry.ShardID != "shardId-000000000001" {
		t.Errorf("shard id = %q", entry.ShardID)
	}
	if entry.TotalRecords != 2 || entry.SuccessRecords != 2 || entry.FailedRecords != 0 {
		t.Errorf("entry counts = %+v", entry)
	}
	if entry.PartitionCount != 2 {
		t.Errorf("partition count = %d", entry.PartitionCount)
	}
}

func TestProcessBatch_AuditFailureNotFatal(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(t, store, &fakeAudit{err: errors.New("metadata store down")})

	stats := p.ProcessBatch(context.Background(), []stream.Record{
		streamRecord(t, eventRecord("e-1", "metric", "2024-01-15T10:30:00Z"), "1"),
	})

	if stats.Written != 1 {
		t.Fatalf("written=%d, want 1", stats.Written)
	}
}

func TestProcessBatch_EmptyBatch(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	p := newTestProcessor(t, store, audit)

	stats := p.ProcessBatch(context.Background(), nil)

	if stats.Processed != 0 || stats.Invalid != 0 || stats.Written != 0 {
		t.Fatalf("unexpected stats for empty batch: %+v", stats)
	}
	if len(audit.batches) != 0 {
		t.Fatal("no audit entry expected for empty batch")
	}
}
