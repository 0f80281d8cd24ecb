// Package queue provides the durable work queues that connect the pipeline
// components, backed by Valkey streams with consumer groups. Messages are
// JSON payloads in a single "data" field; a handler error leaves the entry
// pending so it is redelivered (requeue), while an unparseable payload is
// acked and logged so it cannot poison the stream.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/bmcp/codegraph/internal/config"
)

const (
	// GroupName is the consumer group shared by all workers of a stream.
	GroupName = "bmcp-workers"

	// ResultsStream carries AnalyzerResult messages to the ingestion worker.
	ResultsStream = "bmcp:results:analysis"
	// ScanStream carries full-scan triggers to the scan orchestrator.
	ScanStream = "bmcp:jobs:scan"

	analysisStreamPrefix = "bmcp:jobs:analysis:"
)

// AnalysisStream returns the per-language analysis stream name.
func AnalysisStream(language string) string {
	return analysisStreamPrefix + strings.ToLower(language)
}

// NewClient connects to Valkey and verifies connectivity.
func NewClient(cfg config.ValkeyConfig) (valkey.Client, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	ctx := context.Background()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}
	return client, nil
}

// Publisher enqueues JSON messages onto streams with bounded retry.
type Publisher struct {
	client      valkey.Client
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewPublisher(client valkey.Client, cfg config.QueueConfig, logger *slog.Logger) *Publisher {
	attempts := cfg.PublishMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Publisher{
		client:      client,
		maxAttempts: attempts,
		backoff:     cfg.PublishBackoff,
		logger:      logger,
	}
}

// Publish marshals msg and appends it to the stream, retrying transient
// failures with exponential backoff. After the retry budget is exhausted
// the error is returned; the caller decides whether dropping is acceptable.
func (p *Publisher) Publish(ctx context.Context, stream string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", stream, err)
	}

	delay := p.backoff
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		resp := p.client.Do(ctx, p.client.B().Xadd().
			Key(stream).Id("*").
			FieldValue().FieldValue("data", string(data)).
			Build())
		if lastErr = resp.Error(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("publish failed, retrying",
			slog.String("stream", stream),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("publish to %s after %d attempts: %w", stream, p.maxAttempts, lastErr)
}

// Handler processes one raw JSON payload. A returned error leaves the
// message pending for redelivery.
type Handler func(ctx context.Context, payload []byte) error

// Consumer reads one stream with prefetch 1 and per-message acknowledgement.
type Consumer struct {
	client       valkey.Client
	stream       string
	consumerID   string
	drainTimeout time.Duration
	logger       *slog.Logger
}

func NewConsumer(client valkey.Client, stream, consumerID string, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, stream: stream, consumerID: consumerID, logger: logger}
}

// WithDrainTimeout lets an in-flight handler finish for up to d after the
// consume context is cancelled, instead of failing mid-write and leaving the
// message for redelivery. No new messages are fetched during the drain.
func (c *Consumer) WithDrainTimeout(d time.Duration) *Consumer {
	c.drainTimeout = d
	return c
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	resp := c.client.Do(ctx, c.client.B().XgroupCreate().
		Key(c.stream).Group(GroupName).Id("0").Mkstream().Build())
	if err := resp.Error(); err != nil {
		// BUSYGROUP means the group already exists
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", c.stream, err)
		}
	}
	return nil
}

// Consume blocks reading messages and dispatching them to handler until ctx
// is cancelled. On startup it first drains messages delivered to this
// consumer but never acked (crash recovery).
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	c.drainPending(ctx, handler)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(GroupName, c.consumerID).
			Count(1).Block(5000).
			Streams().Key(c.stream).Id(">").
			Build())

		if err := resp.Error(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// BLOCK timeouts surface as errors; keep polling
			continue
		}

		results, err := resp.AsXRead()
		if err != nil {
			continue
		}

		for _, messages := range results {
			for _, msg := range messages {
				c.process(ctx, msg, handler)
			}
		}
	}
}

func (c *Consumer) drainPending(ctx context.Context, handler Handler) {
	resp := c.client.Do(ctx, c.client.B().Xreadgroup().
		Group(GroupName, c.consumerID).
		Count(10).
		Streams().Key(c.stream).Id("0").
		Build())

	if err := resp.Error(); err != nil {
		c.logger.Warn("drain pending failed",
			slog.String("stream", c.stream), slog.String("error", err.Error()))
		return
	}

	results, err := resp.AsXRead()
	if err != nil {
		return
	}

	for _, messages := range results {
		for _, msg := range messages {
			c.logger.Info("recovering pending message",
				slog.String("stream", c.stream), slog.String("id", msg.ID))
			c.process(ctx, msg, handler)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg valkey.XRangeEntry, handler Handler) {
	ctx, cancel := handlerContext(ctx, c.drainTimeout)
	defer cancel()

	dataStr, ok := msg.FieldValues["data"]
	if !ok {
		c.logger.Warn("message missing data field",
			slog.String("stream", c.stream), slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	if !json.Valid([]byte(dataStr)) {
		// Permanent message error: drop without requeue
		c.logger.Error("unparseable message dropped",
			slog.String("stream", c.stream), slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, []byte(dataStr)); err != nil {
		c.logger.Error("handle message",
			slog.String("stream", c.stream),
			slog.String("id", msg.ID),
			slog.String("error", err.Error()))
		// no ack: the entry stays pending and is redelivered
		return
	}
	c.ack(ctx, msg.ID)
}

// handlerContext derives the context one message is processed under. With a
// drain timeout, cancelling parent starts a grace period of that length
// before the returned context is cancelled; without one, the parent is used
// as is.
func handlerContext(parent context.Context, drain time.Duration) (context.Context, context.CancelFunc) {
	if drain <= 0 {
		return parent, func() {}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		t := time.NewTimer(drain)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-ctx.Done():
		}
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	resp := c.client.Do(ctx, c.client.B().Xack().
		Key(c.stream).Group(GroupName).Id(msgID).Build())
	if err := resp.Error(); err != nil {
		c.logger.Error("xack failed",
			slog.String("stream", c.stream),
			slog.String("id", msgID),
			slog.String("error", err.Error()))
	}
}
