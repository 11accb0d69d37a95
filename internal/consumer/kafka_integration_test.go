//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/events"
	"example.com/progressreports/internal/outbox"
	"example.com/progressreports/internal/persistence/memory"
)

func TestKafkaRoutesReportJobsAndProfileEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.Run(ctx, "confluentinc/confluent-local:7.5.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "progress_events"
	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))

	partitions, err := CheckPartitions(ctx, brokers, topic, 1, nil)
	require.NoError(t, err)
	require.Equal(t, 1, partitions)

	store := memory.NewStore()
	birth := time.Date(1994, time.January, 1, 0, 0, 0, 0, time.UTC)
	store.PutProfile(domain.UserProfile{UserID: "user-2", Sex: "male", BirthDate: &birth, HeightCm: 180, CurrentWeightKg: 80, ActivityLevel: "moderately_active", Goal: "maintain"})

	generator := &scriptedGenerator{}
	router := NewRouter(nil).
		Route(events.TypeReportRequested, NewReportJobHandler(generator, DefaultRetryPolicy, nil)).
		Route(events.TypeProfileUpdated, NewProfileHandler(store, nil))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "progress-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = NewProcessor(reader, router).Run(consumerCtx) }()

	window, err := domain.WindowEndingAt(time.Now(), 7)
	require.NoError(t, err)
	job := domain.NewReportJob("user-1", window, domain.ReportKindDetailed, domain.TriggerManual, time.Now()).
		WithOptions(domain.JobOptions{ExpiresAfter: time.Hour})
	jobPayload, err := json.Marshal(events.NewReportRequested(job))
	require.NoError(t, err)
	profilePayload, err := json.Marshal(events.ProfileUpdated{UserID: "user-2", OccurredAt: time.Now().UTC()})
	require.NoError(t, err)

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()
	require.NoError(t, producer.WriteMessages(ctx, topic,
		kafka.Message{Key: []byte("user-1"), Value: jobPayload, Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte(events.TypeReportRequested)}}},
		kafka.Message{Key: []byte("user-2"), Value: profilePayload, Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte(events.TypeProfileUpdated)}}},
		kafka.Message{Key: []byte("noise"), Value: []byte(`{}`), Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte("workout.logged")}}},
	))

	require.Eventually(t, func() bool {
		generator.mu.Lock()
		defer generator.mu.Unlock()
		return generator.calls == 1
	}, 60*time.Second, 250*time.Millisecond)
	generator.mu.Lock()
	require.Equal(t, "user-1", generator.userID)
	require.Equal(t, domain.ReportKindDetailed, generator.kind)
	generator.mu.Unlock()

	require.Eventually(t, func() bool {
		goals, err := store.Goals(ctx, "user-2")
		return err == nil && goals != nil && goals.Calories > 0
	}, 60*time.Second, 250*time.Millisecond)
}
