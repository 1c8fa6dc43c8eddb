package api

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types on the event stream.
//
// Clients send watch, unwatch and ping. The bridge sends event, ack, pong
// and error.
const (
	frameWatch   = "watch"
	frameUnwatch = "unwatch"
	framePing    = "ping"
	framePong    = "pong"
	frameEvent   = "event"
	frameAck     = "ack"
	frameError   = "error"
)

// sessionQueueSize bounds the frames waiting for a slow client.
const sessionQueueSize = 256

// Frame is one JSON message on the event stream.
type Frame struct {
	Type     string   `json:"type"`
	Ref      string   `json:"ref,omitempty"`
	Event    string   `json:"event,omitempty"`
	DeviceID string   `json:"device_id,omitempty"`
	Devices  []string `json:"devices,omitempty"`
	Time     string   `json:"time,omitempty"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// corsMiddleware has already rejected foreign origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// session is one connected stream client.
//
// A session with no watched devices receives events for every device.
type session struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	devices map[string]struct{}
}

func newSession(hub *Hub, conn *websocket.Conn, subject string) *session {
	return &session{
		hub:     hub,
		conn:    conn,
		subject: subject,
		out:     make(chan []byte, sessionQueueSize),
		done:    make(chan struct{}),
		devices: make(map[string]struct{}),
	}
}

// handleWebSocket upgrades the request and starts the session loops.
// authMiddleware has already accepted the ?token parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var subject string
	if id, ok := identityFrom(r.Context()); ok {
		subject = id.Subject
	}
	sess := newSession(s.hub, conn, subject)
	if !s.hub.join(sess) {
		conn.Close()
		return
	}
	s.logger.Debug("stream session opened", "subject", subject, "sessions", s.hub.Sessions())

	go sess.writeLoop()
	go sess.readLoop()
}

// close signals the write loop to finish. Safe to call more than once.
func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// enqueue queues a frame without blocking. It reports false when the
// session has ended or its queue is full.
func (s *session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *session) watching(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.devices) == 0 {
		return true
	}
	_, ok := s.devices[deviceID]
	return ok
}

// watch adds devices to the filter and returns the resulting set.
func (s *session) watch(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.devices[id] = struct{}{}
	}
	return slices.Sorted(maps.Keys(s.devices))
}

// unwatch removes devices from the filter. An empty list clears it.
func (s *session) unwatch(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		clear(s.devices)
	}
	for _, id := range ids {
		delete(s.devices, id)
	}
	return slices.Sorted(maps.Keys(s.devices))
}

// handle answers one client frame.
func (s *session) handle(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		s.reply(Frame{Type: frameError, Error: "malformed frame"})
		return
	}

	switch in.Type {
	case frameWatch:
		s.reply(Frame{Type: frameAck, Ref: in.Ref, Devices: s.watch(in.Devices)})
	case frameUnwatch:
		s.reply(Frame{Type: frameAck, Ref: in.Ref, Devices: s.unwatch(in.Devices)})
	case framePing:
		s.reply(Frame{Type: framePong, Ref: in.Ref})
	default:
		s.reply(Frame{Type: frameError, Ref: in.Ref, Error: fmt.Sprintf("unsupported frame type %q", in.Type)})
	}
}

func (s *session) reply(f Frame) {
	f.Time = timestamp()
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	s.enqueue(data)
}

// readLoop owns the read side of the connection. Any inbound frame or pong
// pushes the idle deadline forward.
func (s *session) readLoop() {
	defer s.hub.leave(s)

	if s.hub.maxFrame > 0 {
		s.conn.SetReadLimit(s.hub.maxFrame)
	}
	extend := func() error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.idleTimeout))
	}
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend()
	s.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hub.logger.Warn("stream session read failed", "subject", s.subject, "error", err)
			}
			return
		}
		//nolint:errcheck // as above
		extend()
		s.handle(data)
	}
}

// writeLoop is the only writer on the connection. It closes the
// connection on exit, which in turn ends readLoop.
func (s *session) writeLoop() {
	ping := time.NewTicker(s.hub.pingInterval)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			//nolint:errcheck // the peer may already be gone
			s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case frame := <-s.out:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) write(kind int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.hub.idleTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, data)
}
