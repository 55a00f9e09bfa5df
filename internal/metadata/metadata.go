// Package metadata provides append-only audit entries for each
// processing invocation. Entries expire after thirty days; expiry is
// delegated to the backing store.
package metadata

import (
	"context"
	"log/slog"
	"time"
)

// TTL is how long audit entries are retained.
const TTL = 30 * 24 * time.Hour

// BatchEntry summarizes one ingest invocation.
type BatchEntry struct {
	BatchID        string `json:"batch_id"`
	ShardID        string `json:"shard_id"`
	ProcessedAt    string `json:"processed_at"`
	TotalRecords   int    `json:"total_records"`
	SuccessRecords int    `json:"success_records"`
	FailedRecords  int    `json:"failed_records"`
	PartitionCount int    `json:"partitions_count"`
}

// TransformEntry summarizes one transform invocation.
type TransformEntry struct {
	BatchID        string `json:"batch_id"`
	ShardID        string `json:"shard_id"`
	ProcessedAt    string `json:"processed_at"`
	SourceKey      string `json:"source_key"`
	DestinationKey string `json:"destination_key"`
	RecordCount    int    `json:"record_count"`
	Type           string `json:"transformation_type"`
	Version        string `json:"transformation_version"`
	Stage          string `json:"processing_stage"`
}

// Store persists audit entries, keyed by batch id.
type Store interface {
	SaveBatch(ctx context.Context, entry BatchEntry) error
	SaveTransform(ctx context.Context, entry TransformEntry) error
}

// NoopStore is used when no metadata store is configured. Every save
// logs a warning and succeeds; processing never depends on the store.
type NoopStore struct {
	logger *slog.Logger
}

// NewNoopStore creates a NoopStore.
func NewNoopStore(logger *slog.Logger) *NoopStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopStore{logger: logger}
}

func (s *NoopStore) SaveBatch(_ context.Context, entry BatchEntry) error {
	s.logger.Warn("metadata store not configured, dropping batch entry", "batch_id", entry.BatchID)
	return nil
}

func (s *NoopStore) SaveTransform(_ context.Context, entry TransformEntry) error {
	s.logger.Warn("metadata store not configured, dropping transform entry", "batch_id", entry.BatchID)
	return nil
}

var _ Store = (*NoopStore)(nil)
