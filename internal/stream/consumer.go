package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ConsumerConfig holds stream consumer configuration.
type ConsumerConfig struct {
	Cluster       *ClusterConfig
	Topic         string
	ConsumerGroup string
	StartOffset   string // "earliest" or "latest" (default: "latest")
}

// consumer abstracts the kafka client methods used by Consumer for testing.
type consumer interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	Close()
}

// Consumer delivers stream records to a handler in per-poll batches.
// Each delivered batch is one processing invocation; offsets are
// committed after the handler returns without error (at-least-once).
type Consumer struct {
	client consumer
	topic  string
	logger *slog.Logger
}

// NewConsumer creates a new stream consumer.
func NewConsumer(cfg ConsumerConfig, logger *slog.Logger) (*Consumer, error) {
	if cfg.Cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	offset := kgo.NewOffset().AtEnd()
	if cfg.StartOffset == "earliest" {
		offset = kgo.NewOffset().AtStart()
	}

	opts, err := ClientOptions(cfg.Cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}
	opts = append(opts,
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(offset),
		kgo.DisableAutoCommit(),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	return &Consumer{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Run begins consuming. Blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handler func(context.Context, []Record) error) error {
	c.logger.Info("starting stream consumer", "topic", c.topic)

	for {
		fetches := c.client.PollFetches(ctx)

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				c.logger.Error("fetch error", "topic", err.Topic, "partition", err.Partition, "error", err.Err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		var batch []Record
		var fetched []*kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			batch = append(batch, fromKafka(rec))
			fetched = append(fetched, rec)
		})

		if len(batch) > 0 {
			c.logger.Info("batch delivered", "topic", c.topic, "records", len(batch))
			if err := handler(ctx, batch); err != nil {
				c.logger.Error("handler error", "topic", c.topic, "records", len(batch), "error", err)
			} else {
				c.client.MarkCommitRecords(fetched...)
				if err := c.client.CommitMarkedOffsets(ctx); err != nil {
					c.logger.Error("commit error", "topic", c.topic, "error", err)
				}
			}
		}

		// Check for cancellation after processing the batch so records
		// from the last fetch are fully drained before exit.
		if ctx.Err() != nil {
			c.logger.Info("stream consumer draining complete", "topic", c.topic)
			return ctx.Err()
		}
	}
}

// Close performs graceful shutdown of the underlying client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
