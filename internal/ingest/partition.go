package ingest

import (
	"fmt"

	"github.com/lsm/lakeflow/internal/event"
)

// PartitionPath derives the storage partition for a record from its own
// timestamp and event type: event_type=<t>/year=<Y>/month=<MM>/day=<DD>/hour=<HH>,
// with zero-padded two-digit month, day, and hour.
func PartitionPath(timestamp, eventType string) (string, error) {
	t, err := event.ParseTimestamp(timestamp)
	if err != nil {
		return "", fmt.Errorf("partition record: %w", err)
	}
	return fmt.Sprintf("event_type=%s/year=%d/month=%02d/day=%02d/hour=%02d",
		eventType, t.Year(), int(t.Month()), t.Day(), t.Hour()), nil
}
