package learn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
)

// DefaultTimeout bounds a learn when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// Sentinel errors.
var (
	// ErrTimeout is returned when no code arrives before the deadline.
	ErrTimeout = errors.New("learn: timed out waiting for IR code")

	// ErrNoTopic is returned for a device without an IR device topic.
	ErrNoTopic = errors.New("learn: IR device topic is empty")
)

// MQTTClient is the subset of the MQTT client the learner needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
}

// Library is where captured codes are stored. Satisfied by *ircode.Library.
type Library interface {
	Profile(id string) (ircode.Profile, bool)
	Record(deviceID string, code ircode.RecordedCode) (bool, error)
}

// Logger defines the logging interface used by the learner.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

type learnRequest struct {
	LearnIRCode bool `json:"learn_ir_code"`
}

type learnReport struct {
	LearnedIRCode string `json:"learned_ir_code"`
}

// Learner drives the blaster's learning mode.
type Learner struct {
	mqtt    MQTTClient
	qos     byte
	timeout time.Duration
	topics  mqtt.Topics
	logger  Logger
}

// New creates a learner. A timeout <= 0 means DefaultTimeout.
func New(client MQTTClient, qos byte, timeout time.Duration) *Learner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Learner{mqtt: client, qos: qos, timeout: timeout, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (l *Learner) SetLogger(logger Logger) {
	l.logger = logger
}

// Learn puts the blaster on irTopic into learning mode and returns the
// first non-empty code it reports.
//
// Parameters:
//   - ctx: Cancels the wait. The learner's timeout applies on top.
//   - irTopic: zigbee2mqtt friendly name of the blaster (e.g. "ZS06_living")
//
// Returns:
//   - string: The learned code, as reported by the blaster
//   - error: ErrTimeout, ErrNoTopic, or a wrapped MQTT failure
func (l *Learner) Learn(ctx context.Context, irTopic string) (string, error) {
	if irTopic == "" {
		return "", ErrNoTopic
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	learned := make(chan string, 1)
	reportTopic := l.topics.IRDevice(irTopic)
	handler := func(_ string, payload []byte) {
		var report learnReport
		if err := json.Unmarshal(payload, &report); err != nil || report.LearnedIRCode == "" {
			return
		}
		select {
		case learned <- report.LearnedIRCode:
		default:
		}
	}

	if err := l.mqtt.Subscribe(reportTopic, 1, handler); err != nil {
		return "", fmt.Errorf("subscribing to %s: %w", reportTopic, err)
	}
	defer func() {
		if err := l.mqtt.Unsubscribe(reportTopic); err != nil {
			l.logger.Warn("unsubscribe failed", "topic", reportTopic, "error", err)
		}
	}()

	payload, err := json.Marshal(learnRequest{LearnIRCode: true})
	if err != nil {
		return "", fmt.Errorf("encoding learn request: %w", err)
	}
	if err := l.mqtt.Publish(l.topics.IRSet(irTopic), payload, l.qos, false); err != nil {
		return "", fmt.Errorf("starting learn mode: %w", err)
	}
	l.logger.Info("waiting for IR code", "ir_device_topic", irTopic, "timeout", l.timeout)

	select {
	case code := <-learned:
		return code, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w on %s", ErrTimeout, irTopic)
		}
		return "", ctx.Err()
	}
}

// Result describes a captured code.
type Result struct {
	Code     ircode.RecordedCode
	Replaced bool
}

// Capture learns a code on the device's blaster and records it for target.
// target.Code is ignored and replaced with the learned code.
func Capture(ctx context.Context, l *Learner, lib Library, deviceID string, target ircode.RecordedCode) (Result, error) {
	profile, ok := lib.Profile(deviceID)
	if !ok {
		return Result{}, climate.Errorf(climate.ErrDeviceNotFound,
			"AC %s not found or not properly configured", deviceID)
	}
	if target.Power && !profile.Supports(target.Mode) {
		return Result{}, climate.Errorf(climate.ErrModeNotSupported,
			"Mode %s is not supported by AC %s. Supported modes: %s",
			target.Mode, deviceID, climate.JoinModes(profile.SupportedModes))
	}

	code, err := l.Learn(ctx, profile.IRDeviceTopic)
	if err != nil {
		return Result{}, err
	}
	target.Code = code

	replaced, err := lib.Record(deviceID, target)
	if err != nil {
		return Result{}, fmt.Errorf("recording learned code: %w", err)
	}
	return Result{Code: target, Replaced: replaced}, nil
}
