// Package outbox persists and delivers queued events to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventTypeHeader carries the event type on every published record.
const EventTypeHeader = "event_type"

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Option configures optional outbox behaviour.
type Option func(*settings)

type settings struct {
	logger *zap.Logger
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func buildSettings(opts []Option) settings {
	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Dispatcher drains the outbox table and delivers events to Kafka.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	dlq              *DLQWriter
	pollInterval     time.Duration
	batchSize        int
	logger           *zap.Logger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	s := buildSettings(opts)
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		dlq:              NewDLQWriter(pool),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           s.logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatcher error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.claim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	delivered, failed := deliver(ctx, d.producer, messages)
	deliveredCounter.Add(float64(len(delivered)))

	settled := make([]int64, 0, len(messages))
	for _, msg := range delivered {
		settled = append(settled, msg.EventID)
	}
	if len(failed) > 0 {
		d.logger.Warn("outbox delivery failure",
			zap.Int("delivered", len(delivered)),
			zap.Int("failed", len(failed)),
			zap.String("first_reason", failed[0].reason))
		failedCounter.Add(float64(len(failed)))
	}
	for _, f := range failed {
		if err := d.dlq.Write(ctx, f.msg, f.reason); err != nil {
			// Unsettled rows stay claimed-but-unpublished and are retried on the next pass.
			return errors.Join(err, d.markPublished(ctx, settled))
		}
		dlqCounter.WithLabelValues(f.msg.Topic).Inc()
		settled = append(settled, f.msg.EventID)
	}
	return d.markPublished(ctx, settled)
}

// claim locks up to batchSize unpublished rows and stamps them in a single statement.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	const query = `WITH next AS (
            SELECT event_id FROM outbox
            WHERE published_at IS NULL
            ORDER BY event_id
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        )
        UPDATE outbox o SET claimed_at = NOW()
        FROM next
        WHERE o.event_id = next.event_id
        RETURNING o.event_id, o.aggregate_type, o.aggregate_id, o.event_type, o.topic, o.partition_key, o.payload`

	rows, err := d.pool.Query(ctx, query, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var msg Message
		err := row.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.PartitionKey, &msg.Payload)
		return msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].EventID < messages[j].EventID })
	return messages, nil
}

type failedDelivery struct {
	msg    Message
	reason string
}

// deliver writes one batch per topic. Records carry the partition key and the event_type header.
// A malformed row fails alone; a producer error fails every message of that topic only.
func deliver(ctx context.Context, producer messageWriter, messages []Message) (delivered []Message, failed []failedDelivery) {
	type batch struct {
		source  []Message
		records []kafka.Message
	}
	batches := make(map[string]*batch)
	var topics []string

	now := time.Now().UTC()
	for _, msg := range messages {
		switch {
		case msg.Topic == "":
			failed = append(failed, failedDelivery{msg: msg, reason: fmt.Sprintf("no topic for event_id=%d event_type=%s", msg.EventID, msg.EventType)})
			continue
		case !json.Valid(msg.Payload):
			failed = append(failed, failedDelivery{msg: msg, reason: fmt.Sprintf("invalid json payload for event_id=%d", msg.EventID)})
			continue
		}
		b, ok := batches[msg.Topic]
		if !ok {
			b = &batch{}
			batches[msg.Topic] = b
			topics = append(topics, msg.Topic)
		}
		b.source = append(b.source, msg)
		b.records = append(b.records, kafka.Message{
			Key:     []byte(msg.PartitionKey),
			Value:   []byte(msg.Payload),
			Time:    now,
			Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte(msg.EventType)}},
		})
	}

	for _, topic := range topics {
		b := batches[topic]
		if err := producer.WriteMessages(ctx, topic, b.records...); err != nil {
			reason := fmt.Sprintf("write %s: %v", topic, err)
			for _, msg := range b.source {
				failed = append(failed, failedDelivery{msg: msg, reason: reason})
			}
			continue
		}
		delivered = append(delivered, b.source...)
	}
	return delivered, failed
}

func (d *Dispatcher) markPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string
	Payload       json.RawMessage
}
