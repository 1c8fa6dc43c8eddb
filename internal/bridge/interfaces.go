package bridge

import (
	"context"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/command"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests; main adapts *mqtt.Client to it.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Library is the device profile source. Satisfied by *ircode.Library.
type Library interface {
	IDs() []string
	Profile(id string) (ircode.Profile, bool)
	Reload() ([]string, error)
}

// StateStore seeds and lists device states. Satisfied by *state.Store.
type StateStore interface {
	Seed(ctx context.Context, deviceID string, st climate.State) (bool, error)
	List(ctx context.Context) (map[string]climate.State, error)
}

// Dispatcher runs commands. Satisfied by *command.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID, kind, raw string) (command.Result, error)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
