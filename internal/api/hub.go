package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/logging"
)

// Stream event names.
const (
	EventStateChanged = "ac.state_changed"
	EventError        = "ac.error"
)

// ErrorData is the data of an ac.error event. An empty Message means the
// device's error was cleared.
type ErrorData struct {
	Message string `json:"message"`
}

// Hub fans AC events out to every open stream session.
//
// The hub is created before the API server so the dispatcher and the
// error tracker can publish into it; it implements command.Publisher.
type Hub struct {
	logger *logging.Logger

	maxFrame     int64
	pingInterval time.Duration
	idleTimeout  time.Duration

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// NewHub creates a hub. Zero ping or pong settings fall back to 30s/10s.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	ping := time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pong := time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = 10 * time.Second
	}
	return &Hub{
		logger:       logger,
		maxFrame:     int64(cfg.MaxMessageSize),
		pingInterval: ping,
		idleTimeout:  ping + pong,
		sessions:     make(map[*session]struct{}),
	}
}

// Run blocks until ctx is cancelled, then ends every session and refuses
// new ones.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	open := h.sessions
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()

	for s := range open {
		s.close()
	}
	if len(open) > 0 {
		h.logger.Info("closed stream sessions", "count", len(open))
	}
}

// Sessions returns the number of open stream sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// PublishState emits ac.state_changed for a device.
func (h *Hub) PublishState(_ context.Context, deviceID string, st climate.State) error {
	h.emit(EventStateChanged, deviceID, st)
	return nil
}

// PublishError emits ac.error for a device. Registered with
// bridge.ErrorStatus.OnChange.
func (h *Hub) PublishError(deviceID, msg string) {
	h.emit(EventError, deviceID, ErrorData{Message: msg})
}

func (h *Hub) join(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	return true
}

func (h *Hub) leave(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	s.close()
}

// emit encodes the event once and queues it on every session watching
// deviceID. The hub lock is released before queueing.
func (h *Hub) emit(event, deviceID string, data any) {
	frame, err := json.Marshal(Frame{
		Type:     frameEvent,
		Event:    event,
		DeviceID: deviceID,
		Time:     timestamp(),
		Data:     data,
	})
	if err != nil {
		h.logger.Error("encoding stream event", "event", event, "device_id", deviceID, "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		if s.watching(deviceID) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		if !s.enqueue(frame) {
			h.logger.Debug("stream event dropped", "event", event, "device_id", deviceID, "subject", s.subject)
		}
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
