// Package enrich implements the enrichment stage: raw-zone records get
// a content-addressed identifier and event-type-specific derived fields,
// then land in the processed zone.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/lsm/lakeflow/internal/event"
)

// Version tags every enriched object and audit entry.
const Version = "1.0"

// metadata block attached to every enriched record.
var stageMetadata = map[string]any{
	"source":           "event-stream",
	"processing_stage": "transformed",
	"version":          Version,
}

// RecordID computes the content-addressed identifier for a record: a
// 16-character prefix of the SHA-256 over its canonical (key-sorted)
// JSON serialization. Identical content always yields the identical id.
func RecordID(record map[string]any) (string, error) {
	// Map keys marshal in sorted order, which makes the serialization
	// canonical regardless of input key order.
	content, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("serialize record: %w", err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16], nil
}

// TransformRecord enriches a single raw record. The original data,
// event type, and timestamp pass through; derived fields depend on the
// event type. Transport metadata is carried forward when present.
func TransformRecord(record map[string]any, now time.Time) (map[string]any, error) {
	id, err := RecordID(record)
	if err != nil {
		return nil, err
	}

	data, _ := record["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	transformed := map[string]any{
		"original_data":       data,
		"event_type":          record["event_type"],
		"original_timestamp":  record["timestamp"],
		"processed_timestamp": event.FormatTimestamp(now),
		"record_id":           id,
		"metadata":            stageMetadata,
	}

	et, _ := record["event_type"].(string)
	date := now.UTC().Format("2006-01-02")
	switch event.Type(et) {
	case event.TypeTransaction:
		transformed["enriched_data"] = enrichTransaction(data, date)
	case event.TypeUserAction:
		transformed["enriched_data"] = enrichUserAction(data, date)
	case event.TypeMetric:
		transformed["enriched_data"] = enrichMetric(data, date)
	default:
		// Unknown types pass their data through unchanged. Intentional:
		// the pipeline does not guess at shapes it has never seen.
		transformed["enriched_data"] = data
	}

	if sm, ok := record["stream_metadata"]; ok {
		transformed["stream_metadata"] = sm
	}

	return transformed, nil
}

func enrichTransaction(data map[string]any, date string) map[string]any {
	amount := numField(data, "amount")
	out := withExtras(data, 3)
	out["transaction_date"] = date
	out["amount_category"] = CategorizeAmount(amount)
	out["is_high_value"] = amount > 1000
	return out
}

func enrichUserAction(data map[string]any, date string) map[string]any {
	out := withExtras(data, 2)
	out["action_date"] = date
	out["session_duration_category"] = CategorizeDuration(numField(data, "session_duration"))
	return out
}

func enrichMetric(data map[string]any, date string) map[string]any {
	value := numField(data, "value")
	out := withExtras(data, 3)
	out["metric_date"] = date
	out["value_range"] = CategorizeValue(value)
	out["is_anomaly"] = IsAnomalous(value)
	return out
}

// CategorizeAmount buckets a transaction amount.
func CategorizeAmount(amount float64) string {
	switch {
	case amount < 10:
		return "micro"
	case amount < 100:
		return "small"
	case amount < 1000:
		return "medium"
	default:
		return "large"
	}
}

// CategorizeDuration buckets a session duration in seconds.
func CategorizeDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return "short"
	case seconds < 600:
		return "medium"
	default:
		return "long"
	}
}

// CategorizeValue buckets a metric value.
func CategorizeValue(value float64) string {
	switch {
	case value < 0:
		return "negative"
	case value < 50:
		return "low"
	case value < 100:
		return "normal"
	default:
		return "high"
	}
}

// IsAnomalous flags metric values outside the typical range.
func IsAnomalous(value float64) bool {
	return value < 0 || value > 200
}

// withExtras copies data with room for n derived fields.
func withExtras(data map[string]any, n int) map[string]any {
	out := make(map[string]any, len(data)+n)
	for k, v := range data {
		out[k] = v
	}
	return out
}

// numField reads a numeric field from decoded JSON, defaulting to 0.
func numField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}
