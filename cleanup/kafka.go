package cleanup

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/joshbouncesecurity/pinot/metrics"
	kafkago "github.com/segmentio/kafka-go"
)

// deletionRequest is the wire format published for each segment.
type deletionRequest struct {
	Table     string    `json:"table"`
	Segment   string    `json:"segment"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaTrigger publishes deletion requests to a Kafka topic consumed by the
// external deletion workers. Messages are keyed by table so requests for one
// table stay ordered within a partition. Publishing is asynchronous; broker
// errors are logged and counted, never returned.
type KafkaTrigger struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewKafkaTrigger creates a trigger publishing to topic on the given brokers.
func NewKafkaTrigger(brokers []string, topic string, logger *slog.Logger) *KafkaTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cleanup-kafka")

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				metrics.CleanupFailures.Inc()
				logger.Warn("deletion request publish failed",
					"messages", len(msgs), "error", err)
			}
		},
	}
	return &KafkaTrigger{writer: w, logger: logger}
}

func (t *KafkaTrigger) DeleteSegments(ctx context.Context, table string, segments []string) {
	msgs := make([]kafkago.Message, 0, len(segments))
	now := time.Now().UTC()
	for _, seg := range segments {
		payload, err := json.Marshal(deletionRequest{Table: table, Segment: seg, Timestamp: now})
		if err != nil {
			metrics.CleanupFailures.Inc()
			t.logger.Warn("marshal deletion request", "table", table, "segment", seg, "error", err)
			continue
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(table), Value: payload})
	}
	if len(msgs) == 0 {
		return
	}
	// Async writer: WriteMessages only queues; the Completion callback
	// observes broker errors.
	if err := t.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.CleanupFailures.Inc()
		t.logger.Warn("enqueue deletion requests", "table", table, "error", err)
		return
	}
	metrics.CleanupEnqueued.WithLabelValues(table).Add(float64(len(msgs)))
}

func (t *KafkaTrigger) Close() error {
	return t.writer.Close()
}
