package command

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
)

// ErrTransport wraps failures to send an IR code. The command fails and the
// state is left untouched.
var ErrTransport = errors.New("failed to send IR code")

// StateStore holds the logical state of each device.
// Get returns an error wrapping state.ErrStateNotFound for unknown devices.
type StateStore interface {
	Get(ctx context.Context, deviceID string) (climate.State, error)
	Put(ctx context.Context, deviceID string, st climate.State) error
}

// LibrarySource returns snapshot copies of device profiles.
type LibrarySource interface {
	Profile(deviceID string) (ircode.Profile, bool)
}

// Transport delivers an IR code to a blaster.
type Transport interface {
	Send(ctx context.Context, deviceTopic, code string) error
}

// Publisher announces a new state. Failures are logged, never fatal.
type Publisher interface {
	PublishState(ctx context.Context, deviceID string, st climate.State) error
}

// ErrorChannel exposes the last command error of each device.
type ErrorChannel interface {
	SetError(deviceID, msg string)
	ClearError(deviceID string)
}

// Recorder receives command metrics. Implementations must not block.
type Recorder interface {
	RecordCommand(deviceID, kind string, err error, duration time.Duration)
	RecordState(deviceID string, st climate.State)
}

// Logger defines the logging interface used by this package.
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

type noopPublisher struct{}

func (noopPublisher) PublishState(context.Context, string, climate.State) error { return nil }

type noopErrors struct{}

func (noopErrors) SetError(string, string) {}
func (noopErrors) ClearError(string)       {}
