// Package ingest implements the validate-and-partition stage: stream
// records are decoded, validated, stamped with transport metadata,
// grouped by partition, and written to the raw zone.
package ingest

import (
	"fmt"

	"github.com/lsm/lakeflow/internal/event"
)

var requiredFields = []string{"timestamp", "event_type", "data"}

// Validate checks a decoded record for the required fields, a parseable
// ISO-8601 timestamp, and a known event type. The returned error names
// the failing field; a nil error means the record is well-formed.
func Validate(record map[string]any) error {
	for _, field := range requiredFields {
		if _, ok := record[field]; !ok {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	ts, ok := record["timestamp"].(string)
	if !ok {
		return fmt.Errorf("invalid timestamp format")
	}
	if _, err := event.ParseTimestamp(ts); err != nil {
		return fmt.Errorf("invalid timestamp format")
	}

	et, ok := record["event_type"].(string)
	if !ok || !event.Known(et) {
		return fmt.Errorf("invalid event_type: %v", record["event_type"])
	}

	return nil
}
