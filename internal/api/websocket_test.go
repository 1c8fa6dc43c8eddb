package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-acbridge/internal/auth"
	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/logging"
)

// ─── Event Hub Tests ───────────────────────────────────────────────

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, cancel
}

// joined returns a connectionless session registered with hub.
func joined(t *testing.T, hub *Hub) *session {
	t.Helper()
	s := newSession(hub, nil, "test")
	if !hub.join(s) {
		t.Fatal("join() refused a session on a running hub")
	}
	return s
}

func next(t *testing.T, s *session) Frame {
	t.Helper()
	select {
	case data := <-s.out:
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func expectNone(t *testing.T, s *session) {
	t.Helper()
	select {
	case data := <-s.out:
		t.Errorf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishState(t *testing.T) {
	hub, _ := newTestHub(t)
	s := joined(t, hub)

	st := climate.State{Power: true, Mode: climate.ModeDry, FanSpeed: climate.FanLow, Temperature: 24}
	if err := hub.PublishState(context.Background(), "den", st); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}

	f := next(t, s)
	if f.Type != frameEvent || f.Event != EventStateChanged || f.DeviceID != "den" {
		t.Errorf("frame = %+v", f)
	}
	data, ok := f.Data.(map[string]any)
	if !ok || data["mode"] != "dry" || data["temperature"] != float64(24) {
		t.Errorf("data = %v", f.Data)
	}
	if f.Time == "" {
		t.Error("event has no timestamp")
	}
}

func TestHub_PublishErrorCleared(t *testing.T) {
	hub, _ := newTestHub(t)
	s := joined(t, hub)

	hub.PublishError("den", "")

	f := next(t, s)
	if f.Event != EventError {
		t.Fatalf("event = %q, want %q", f.Event, EventError)
	}
	data, _ := f.Data.(map[string]any)
	if msg, present := data["message"]; !present || msg != "" {
		t.Errorf("data = %v, want empty message", f.Data)
	}
}

func TestHub_DeviceFilter(t *testing.T) {
	hub, _ := newTestHub(t)
	s := joined(t, hub)
	s.watch([]string{"bedroom"})

	hub.PublishError("den", "boom")
	expectNone(t, s)

	hub.PublishError("bedroom", "boom")
	if f := next(t, s); f.DeviceID != "bedroom" {
		t.Errorf("device_id = %q, want bedroom", f.DeviceID)
	}

	s.unwatch(nil)
	hub.PublishError("den", "boom")
	if f := next(t, s); f.DeviceID != "den" {
		t.Errorf("after unwatch device_id = %q, want den", f.DeviceID)
	}
}

func TestHub_Sessions(t *testing.T) {
	hub, _ := newTestHub(t)
	if n := hub.Sessions(); n != 0 {
		t.Errorf("initial sessions = %d, want 0", n)
	}

	s := joined(t, hub)
	if n := hub.Sessions(); n != 1 {
		t.Errorf("after join sessions = %d, want 1", n)
	}

	hub.leave(s)
	hub.leave(s)
	if n := hub.Sessions(); n != 0 {
		t.Errorf("after leave sessions = %d, want 0", n)
	}
	if s.enqueue([]byte("{}")) {
		t.Error("enqueue() succeeded on a closed session")
	}
}

func TestHub_RunEndsSessions(t *testing.T) {
	hub, cancel := newTestHub(t)
	s := joined(t, hub)

	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("session not closed after hub shutdown")
	}
	if hub.join(newSession(hub, nil, "late")) {
		t.Error("join() accepted a session after shutdown")
	}
}

func TestSession_QueueFull(t *testing.T) {
	hub, _ := newTestHub(t)
	s := newSession(hub, nil, "slow")
	s.out = make(chan []byte, 1)

	if !s.enqueue([]byte("a")) {
		t.Fatal("first enqueue() failed")
	}
	if s.enqueue([]byte("b")) {
		t.Error("enqueue() on a full queue should report false")
	}
}

func TestSession_Handle(t *testing.T) {
	hub, _ := newTestHub(t)
	s := newSession(hub, nil, "panel")

	tests := []struct {
		name    string
		in      string
		want    Frame
		wantErr string
	}{
		{name: "ping", in: `{"type":"ping","ref":"p1"}`, want: Frame{Type: framePong, Ref: "p1"}},
		{name: "watch", in: `{"type":"watch","ref":"w1","devices":["den","bedroom"]}`,
			want: Frame{Type: frameAck, Ref: "w1", Devices: []string{"bedroom", "den"}}},
		{name: "unwatch one", in: `{"type":"unwatch","ref":"u1","devices":["den"]}`,
			want: Frame{Type: frameAck, Ref: "u1", Devices: []string{"bedroom"}}},
		{name: "unwatch all", in: `{"type":"unwatch","ref":"u2"}`, want: Frame{Type: frameAck, Ref: "u2"}},
		{name: "malformed", in: `{nope`, want: Frame{Type: frameError}, wantErr: "malformed frame"},
		{name: "unknown", in: `{"type":"subscribe","ref":"x"}`, want: Frame{Type: frameError, Ref: "x"}, wantErr: "subscribe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.handle([]byte(tt.in))
			got := next(t, s)
			if got.Type != tt.want.Type || got.Ref != tt.want.Ref {
				t.Errorf("reply = %+v, want type %q ref %q", got, tt.want.Type, tt.want.Ref)
			}
			if !slices.Equal(got.Devices, tt.want.Devices) {
				t.Errorf("devices = %v, want %v", got.Devices, tt.want.Devices)
			}
			if !strings.Contains(got.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", got.Error, tt.wantErr)
			}
		})
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	env, _ := securedServer(t)
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial without token should fail")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("dial without token: resp = %v, err = %v", resp, err)
	}

	token, err := auth.GenerateToken("panel", auth.RoleViewer, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.Sessions() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.srv.hub.PublishError("living_room", "COOL mode not available at 18°C")

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Event != EventError || f.DeviceID != "living_room" {
		t.Errorf("frame = %+v", f)
	}
	data, _ := f.Data.(map[string]any)
	if data["message"] != "COOL mode not available at 18°C" {
		t.Errorf("data = %v", f.Data)
	}

	if err := conn.WriteJSON(Frame{Type: framePing, Ref: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f = Frame{}
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if f.Type != framePong || f.Ref != "p1" {
		t.Errorf("pong = %+v", f)
	}
}
