package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/events"
)

// Execer is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Event is a row to be written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string
	Payload       any
}

const insertStmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6)`

// Insert serialises the payload and appends it to the outbox using db, which may be a transaction.
func Insert(ctx context.Context, db Execer, event Event) error {
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.EventType, err)
	}
	if _, err := db.Exec(ctx, insertStmt,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Topic,
		event.PartitionKey,
		body,
	); err != nil {
		return fmt.Errorf("insert outbox %s: %w", event.EventType, err)
	}
	return nil
}

// Queue is the report job queue. Enqueue is a single outbox insert; the Dispatcher publishes it to Kafka.
type Queue struct {
	db    Execer
	topic string
}

// NewQueue constructs a Queue publishing to topic.
func NewQueue(db Execer, topic string) *Queue {
	return &Queue{db: db, topic: topic}
}

// Enqueue records the job with its expiry. Jobs are keyed by user so one user's jobs stay ordered on a partition.
func (q *Queue) Enqueue(ctx context.Context, job domain.ReportJob, opts domain.JobOptions) (domain.ReportJob, error) {
	job = job.WithOptions(opts)
	err := Insert(ctx, q.db, Event{
		AggregateType: "report_job",
		AggregateID:   job.ID,
		EventType:     events.TypeReportRequested,
		Topic:         q.topic,
		PartitionKey:  job.UserID,
		Payload:       events.NewReportRequested(job),
	})
	if err != nil {
		return domain.ReportJob{}, err
	}
	enqueuedCounter.WithLabelValues(string(job.Trigger)).Inc()
	return job, nil
}
