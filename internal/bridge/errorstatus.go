package bridge

import (
	"sync"

	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
)

// ErrorStatus tracks the last command error of each device and publishes it
// on accontroller/{id}/error. Implements command.ErrorChannel.
//
// Errors live in memory only; after a restart every device starts clean.
type ErrorStatus struct {
	mqtt   MQTTClient
	qos    byte
	topics mqtt.Topics

	mu        sync.RWMutex
	errors    map[string]string
	listeners []func(deviceID, msg string)

	logger Logger
}

// NewErrorStatus creates an error channel publishing at the given QoS.
func NewErrorStatus(client MQTTClient, qos byte) *ErrorStatus {
	return &ErrorStatus{
		mqtt:   client,
		qos:    qos,
		errors: make(map[string]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for publish failures.
func (e *ErrorStatus) SetLogger(logger Logger) {
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

// OnChange registers fn to be called after every set or clear. An empty
// msg means the error was cleared.
func (e *ErrorStatus) OnChange(fn func(deviceID, msg string)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// SetError records msg as the device's current error and publishes it.
func (e *ErrorStatus) SetError(deviceID, msg string) {
	e.mu.Lock()
	e.errors[deviceID] = msg
	e.mu.Unlock()

	e.publish(deviceID, msg)
	e.notify(deviceID, msg)
}

// ClearError removes the device's error. Nothing is published if the
// device had no error.
func (e *ErrorStatus) ClearError(deviceID string) {
	e.mu.Lock()
	_, had := e.errors[deviceID]
	delete(e.errors, deviceID)
	e.mu.Unlock()

	if !had {
		return
	}
	e.publish(deviceID, "")
	e.notify(deviceID, "")
}

// Get returns the device's current error.
func (e *ErrorStatus) Get(deviceID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	msg, ok := e.errors[deviceID]
	return msg, ok
}

// Publish republishes the device's current error, or an empty payload.
func (e *ErrorStatus) Publish(deviceID string) {
	msg, _ := e.Get(deviceID)
	e.publish(deviceID, msg)
}

func (e *ErrorStatus) publish(deviceID, msg string) {
	if err := e.mqtt.Publish(e.topics.Error(deviceID), []byte(msg), e.qos, true); err != nil {
		e.mu.RLock()
		logger := e.logger
		e.mu.RUnlock()
		logger.Warn("publishing error state failed", "device_id", deviceID, "error", err)
	}
}

func (e *ErrorStatus) notify(deviceID, msg string) {
	e.mu.RLock()
	listeners := append([]func(string, string){}, e.listeners...)
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(deviceID, msg)
	}
}
