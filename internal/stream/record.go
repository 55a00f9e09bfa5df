package stream

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Record is the transport envelope handed to consumers. The payload is
// carried base64-encoded; sequence number, partition key, and arrival
// timestamp are assigned by the transport.
type Record struct {
	Data                        string  `json:"data"`
	SequenceNumber              string  `json:"sequenceNumber"`
	PartitionKey                string  `json:"partitionKey"`
	ApproximateArrivalTimestamp float64 `json:"approximateArrivalTimestamp"`
	EventID                     string  `json:"eventID"`
}

// Payload decodes the base64-encoded record payload.
func (r Record) Payload() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode record payload: %w", err)
	}
	return b, nil
}

// ShardID returns the shard identifier embedded in the transport event
// id (the segment before the first colon).
func (r Record) ShardID() string {
	if id, _, ok := strings.Cut(r.EventID, ":"); ok {
		return id
	}
	if r.EventID != "" {
		return r.EventID
	}
	return "unknown"
}

// EncodePayload wraps raw payload bytes in the transport's base64 form.
func EncodePayload(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// fromKafka converts a fetched Kafka record into the transport envelope.
func fromKafka(rec *kgo.Record) Record {
	return Record{
		Data:                        EncodePayload(rec.Value),
		SequenceNumber:              strconv.FormatInt(rec.Offset, 10),
		PartitionKey:                string(rec.Key),
		ApproximateArrivalTimestamp: float64(rec.Timestamp.UnixMilli()) / 1000,
		EventID:                     fmt.Sprintf("shardId-%012d:%d", rec.Partition, rec.Offset),
	}
}
