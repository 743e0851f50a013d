package appkafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MockKafka records every message written to it.
type MockKafka struct {
	mu              sync.Mutex
	WrittenMessages []kafka.Message // stores messages written via WriteMessages
	ShouldFail      bool            // flag to simulate failures during write operations
}

// WriteMessages appends messages to WrittenMessages.
func (m *MockKafka) WriteMessages(ctx context.Context, messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	m.WrittenMessages = append(m.WrittenMessages, messages...)
	return nil
}

// Events decodes the recorded messages, skipping any that are not events.
func (m *MockKafka) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []Event
	for _, msg := range m.WrittenMessages {
		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err == nil {
			res = append(res, ev)
		}
	}
	return res
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(context.Context, ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) Close() error { return nil }
