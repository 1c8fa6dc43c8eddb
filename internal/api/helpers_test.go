package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/command"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
	"github.com/nerrad567/gray-logic-acbridge/internal/state"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockLibrary map[string]ircode.Profile

func (l mockLibrary) IDs() []string {
	ids := make([]string, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l mockLibrary) Profile(id string) (ircode.Profile, bool) {
	p, ok := l[id]
	return p, ok
}

type mockStates struct {
	mu      sync.Mutex
	states  map[string]climate.State
	history map[string][]state.HistoryEntry
	err     error
	limit   int
}

func (m *mockStates) Get(_ context.Context, id string) (climate.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return climate.State{}, m.err
	}
	st, ok := m.states[id]
	if !ok {
		return climate.State{}, state.ErrStateNotFound
	}
	return st, nil
}

func (m *mockStates) List(context.Context) (map[string]climate.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]climate.State, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out, nil
}

func (m *mockStates) GetHistory(_ context.Context, id string, limit int) ([]state.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.limit = limit
	return m.history[id], nil
}

type mockDispatcher struct {
	mu      sync.Mutex
	calls   []string
	sources []string
	err     error
	st      climate.State
}

func (d *mockDispatcher) Dispatch(ctx context.Context, id, kind, raw string) (command.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, id+"/"+kind+"="+raw)
	d.sources = append(d.sources, state.SourceFrom(ctx))
	if d.err != nil {
		return command.Result{}, d.err
	}
	return command.Result{CommandID: "cmd-123", State: d.st}, nil
}

type mockErrors map[string]string

func (e mockErrors) Get(id string) (string, bool) {
	msg, ok := e[id]
	return msg, ok
}

type testEnv struct {
	srv        *Server
	router     http.Handler
	states     *mockStates
	dispatcher *mockDispatcher
	errors     mockErrors
}

// testServer creates a Server with in-memory collaborators.
// living_room has state; bedroom is in the library without a state record.
func testServer(t *testing.T, sec config.SecurityConfig) *testEnv {
	t.Helper()

	lib := mockLibrary{
		"living_room": {
			ID:             "living_room",
			FriendlyName:   "Living Room AC",
			IRDeviceTopic:  "ZS06_living",
			SupportedModes: []climate.Mode{climate.ModeCool, climate.ModeHeat},
			Codes: []ircode.RecordedCode{
				{Power: false, Code: "OFF"},
				{Power: true, Mode: climate.ModeCool, FanSpeed: climate.FanAuto, Temperature: 22, Code: "C22A"},
			},
		},
		"bedroom": {
			ID:             "bedroom",
			FriendlyName:   "Bedroom AC",
			IRDeviceTopic:  "ZS06_bed",
			SupportedModes: []climate.Mode{climate.ModeCool},
		},
	}
	env := &testEnv{
		states: &mockStates{
			states: map[string]climate.State{
				"living_room": {Power: true, Mode: climate.ModeCool, FanSpeed: climate.FanAuto, Temperature: 22, LastUpdated: testNow},
			},
			history: map[string][]state.HistoryEntry{
				"living_room": {
					{ID: 2, DeviceID: "living_room", Source: state.SourceCommand, CreatedAt: testNow},
					{ID: 1, DeviceID: "living_room", Source: state.SourceSeed, CreatedAt: testNow.Add(-time.Hour)},
				},
			},
		},
		dispatcher: &mockDispatcher{st: climate.State{Power: true, Mode: climate.ModeCool, FanSpeed: climate.FanAuto, Temperature: 22}},
		errors:     mockErrors{"bedroom": "AC bedroom not found or not properly configured"},
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:   sec,
		Logger:     log,
		Library:    lib,
		States:     env.states,
		Dispatcher: env.dispatcher,
		Errors:     env.errors,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(ctx)

	env.srv = srv
	env.router = srv.buildRouter()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}
