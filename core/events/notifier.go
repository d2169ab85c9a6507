// Package events publishes change notifications for resource mutations.
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/trackww/backend/core"
)

// Notification describes one successful mutating operation on a resource.
type Notification struct {
	Resource  string          `json:"resource"`
	Operation core.Operation  `json:"operation"`
	Key       string          `json:"key,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Notifier receives notifications for create, update and delete operations.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NopNotifier discards all notifications. It is the default when no brokers
// are configured.
type NopNotifier struct{}

// Notify implements Notifier
func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// KafkaNotifier publishes notifications as JSON messages to one topic,
// keyed by resource name so all changes of a resource land on one partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier writing to the given brokers and topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Notify implements Notifier
func (n *KafkaNotifier) Notify(ctx context.Context, notification Notification) error {
	value, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notification.Resource),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
