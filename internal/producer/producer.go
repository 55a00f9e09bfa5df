// Package producer implements the rate-limited event publisher: it
// generates synthetic events, accumulates them into batches, and emits
// each batch to the stream at a target rate.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/lsm/lakeflow/internal/event"
)

// BatchPublisher emits a batch of payloads and reports how many records
// the transport accepted and rejected. Implementations never abort the
// run: a transport failure of the whole call counts every record as
// failed.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, keys []string, payloads [][]byte) (success, failed int)
}

// Config holds producer settings.
type Config struct {
	Rate      float64       // target events per second
	Duration  time.Duration // how long to run
	BatchSize int           // records accumulated before a batch is emitted
}

// Stats holds cumulative send statistics.
type Stats struct {
	Sent       int64
	Failed     int64
	TotalBytes int64
}

// SuccessRate returns sent / (sent+failed) * 100, or 0 when no records
// have been attempted.
func (s Stats) SuccessRate() float64 {
	attempted := s.Sent + s.Failed
	if attempted == 0 {
		return 0
	}
	return float64(s.Sent) / float64(attempted) * 100
}

// Producer drives the generate-batch-publish loop.
type Producer struct {
	gen     *event.Generator
	pub     BatchPublisher
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	stats   Stats
}

// New creates a Producer. A rate of zero or less falls back to one
// event per second; a batch size below one falls back to one.
func New(gen *event.Generator, pub BatchPublisher, cfg Config, logger *slog.Logger) (*Producer, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	return &Producer{
		gen:     gen,
		pub:     pub,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		logger:  logger,
	}, nil
}

// Run generates and publishes events until the configured duration
// elapses or ctx is cancelled. Cancellation is a graceful stop, not an
// error: the pending batch is flushed and statistics gathered so far
// are returned. Pacing is best-effort; drift from the blocking cost of
// generation and transport calls is accepted.
func (p *Producer) Run(ctx context.Context) Stats {
	deadline := time.Now().Add(p.cfg.Duration)

	var keys []string
	var batch [][]byte

	for time.Now().Before(deadline) {
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Info("producer stopped", "reason", err)
			break
		}

		evt := p.gen.Generate()
		payload, err := json.Marshal(evt)
		if err != nil {
			p.logger.Error("marshal event", "error", err)
			continue
		}

		keys = append(keys, evt.EventID)
		batch = append(batch, payload)

		if len(batch) >= p.cfg.BatchSize {
			p.flush(ctx, keys, batch)
			keys, batch = nil, nil
		}
	}

	// Flush the partially filled final batch. A cancelled run still
	// flushes, so the stop signal is detached from the publish call.
	if len(batch) > 0 {
		p.flush(context.WithoutCancel(ctx), keys, batch)
	}

	return p.stats
}

// Stats returns the statistics gathered so far.
func (p *Producer) Stats() Stats {
	return p.stats
}

func (p *Producer) flush(ctx context.Context, keys []string, batch [][]byte) {
	success, failed := p.pub.PublishBatch(ctx, keys, batch)
	p.stats.Sent += int64(success)
	p.stats.Failed += int64(failed)
	for _, payload := range batch {
		p.stats.TotalBytes += int64(len(payload))
	}
}
