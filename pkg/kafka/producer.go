// Package kafka publishes device provisioning commands to the command channel
// consumed by the router agents. The channel is at-least-once; the agents own
// retries and deduplication.
package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	skafka "github.com/segmentio/kafka-go"
)

// DeviceCommand is the payload asking a router agent to change a device state.
type DeviceCommand struct {
	DeviceID     string    `json:"device_id"`
	AccountID    uuid.UUID `json:"account_id"`
	MACAddress   string    `json:"mac_address"`
	DesiredState string    `json:"desired_state"` // "block" or "unblock"
	Timestamp    time.Time `json:"timestamp"`
}

// Writer defines the subset of segmentio kafka.Writer we need. This makes the producer testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher is the interface used by the engine to emit device commands.
type Publisher interface {
	PublishCommand(ctx context.Context, cmd DeviceCommand) error
	Close() error
}

// CommandProducer is a thin wrapper around a kafka writer implementing Publisher.
type CommandProducer struct {
	writer Writer
}

// NewCommandProducer creates a CommandProducer that writes to the provided broker/topic.
func NewCommandProducer(brokerURL, topic string) *CommandProducer {
	w := &skafka.Writer{
		Addr:     skafka.TCP(brokerURL),
		Topic:    topic,
		Balancer: &skafka.LeastBytes{},
	}
	return &CommandProducer{writer: w}
}

// NewCommandProducerWithWriter allows injecting a test writer.
func NewCommandProducerWithWriter(w Writer) *CommandProducer {
	return &CommandProducer{writer: w}
}

// PublishCommand marshals the command to JSON and writes a kafka message keyed
// by device id, so commands for one device stay ordered within a partition.
func (p *CommandProducer) PublishCommand(ctx context.Context, cmd DeviceCommand) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		log.Println("failed to marshal device command:", err)
		return err
	}
	msg := skafka.Message{Key: []byte(cmd.DeviceID), Value: b}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Println("kafka write error:", err)
		return err
	}
	return nil
}

// Close closes the underlying writer.
func (p *CommandProducer) Close() error {
	return p.writer.Close()
}
