// Package events publishes channel status transitions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventWentLive    = "channel.went_live"
	EventWentOffline = "channel.went_offline"
)

// Publisher delivers an encoded event. partitionKey keeps the events of one
// channel in order.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

// StatusChanged is the payload of both transition events.
type StatusChanged struct {
	ChannelID string    `json:"channelId"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	VideoID   string    `json:"videoId,omitempty"`
	At        time.Time `json:"at"`
}

// EventType returns the event name for a transition into live or offline.
func EventType(live bool) string {
	if live {
		return EventWentLive
	}
	return EventWentOffline
}

// PublishStatusChanged encodes evt and hands it to p, keyed by channel id.
func PublishStatusChanged(ctx context.Context, p Publisher, live bool, evt StatusChanged) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", EventType(live), err)
	}
	return p.Publish(ctx, EventType(live), payload, evt.ID)
}

// LoggingPublisher writes events to the log. Used when no broker is
// configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"operation", "publish",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload", string(payload),
	)
	return nil
}

// KafkaPublisher writes events to Kafka. Events go to the topic mapped for
// their type, else to a topic named after the type.
type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
}

func NewKafkaPublisher(brokers []string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicByEvent: topicByEvent,
	}, nil
}

// TopicFor returns the topic eventType is written to.
func (p *KafkaPublisher) TopicFor(eventType string) string {
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		return mapped
	}
	return eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.TopicFor(eventType),
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
