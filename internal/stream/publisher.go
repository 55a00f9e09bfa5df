package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// producer abstracts the kafka client methods used by Publisher for testing.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher publishes event payloads to a stream topic.
type Publisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a publisher for the given topic. The cluster
// config carries broker addresses plus optional SASL/TLS settings.
func NewPublisher(cluster *ClusterConfig, topic string, logger *slog.Logger) (*Publisher, error) {
	if cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := ClientOptions(cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher client: %w", err)
	}

	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Publish sends a single payload keyed by partition key.
func (p *Publisher) Publish(ctx context.Context, key string, payload []byte) error {
	results := p.client.ProduceSync(ctx, &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: payload,
	})
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("stream publish: %w", err)
	}
	return nil
}

// PublishBatch sends a batch of payloads, one record per payload, keyed
// by the matching entry of keys. It never returns an error: records the
// broker rejected are counted as failed, and a transport-level failure
// of the whole call fails every record in the batch.
func (p *Publisher) PublishBatch(ctx context.Context, keys []string, payloads [][]byte) (success, failed int) {
	if len(payloads) == 0 {
		return 0, 0
	}

	records := make([]*kgo.Record, len(payloads))
	for i, payload := range payloads {
		var key []byte
		if i < len(keys) {
			key = []byte(keys[i])
		}
		records[i] = &kgo.Record{Topic: p.topic, Key: key, Value: payload}
	}

	results := p.client.ProduceSync(ctx, records...)
	for _, res := range results {
		if res.Err != nil {
			failed++
			p.logger.Error("record publish failed", "topic", p.topic, "error", res.Err)
		} else {
			success++
		}
	}

	p.logger.Info("batch sent", "topic", p.topic, "success", success, "failed", failed)
	return success, failed
}

// Close shuts down the publisher.
func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}
