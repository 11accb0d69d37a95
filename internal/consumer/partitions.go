package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type partitionReader interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
}

// CheckPartitions reports the partition count of topic and warns when a consumer group of
// readers members would leave some of them without an assignment.
func CheckPartitions(ctx context.Context, brokers []string, topic string, readers int, logger *zap.Logger) (int, error) {
	if len(brokers) == 0 {
		return 0, errors.New("no kafka brokers configured")
	}
	var errs error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		count, err := checkPartitions(conn, topic, readers, logger)
		_ = conn.Close()
		return count, err
	}
	return 0, fmt.Errorf("dial kafka: %w", errs)
}

func checkPartitions(conn partitionReader, topic string, readers int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return 0, fmt.Errorf("read partitions of %s: %w", topic, err)
	}
	if len(partitions) < readers {
		logger.Warn("topic has fewer partitions than readers; extra readers stay idle",
			zap.String("topic", topic),
			zap.Int("partitions", len(partitions)),
			zap.Int("readers", readers))
	}
	return len(partitions), nil
}
