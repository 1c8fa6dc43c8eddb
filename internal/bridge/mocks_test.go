package bridge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/command"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]func(topic string, payload []byte)
	connected  bool
	publishErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// Last returns the most recent payload published on topic.
func (m *MockMQTTClient) Last(topic string) (mockPublish, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].Topic == topic {
			return m.published[i], true
		}
	}
	return mockPublish{}, false
}

// Subscribed returns the subscribed topics in sorted order.
func (m *MockMQTTClient) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// SimulateMessage simulates receiving an MQTT message on a topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
	return ok
}

// mockLibrary implements Library. Reload swaps in next.
type mockLibrary struct {
	mu        sync.Mutex
	profiles  map[string]ircode.Profile
	next      map[string]ircode.Profile
	reloadErr error
}

func newMockLibrary(ids ...string) *mockLibrary {
	l := &mockLibrary{profiles: make(map[string]ircode.Profile)}
	for _, id := range ids {
		l.profiles[id] = testProfile(id)
	}
	return l
}

func (l *mockLibrary) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.profiles))
	for id := range l.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *mockLibrary) Profile(id string) (ircode.Profile, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.profiles[id]
	return p, ok
}

func (l *mockLibrary) Reload() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reloadErr != nil {
		return nil, l.reloadErr
	}
	var added []string
	for id := range l.next {
		if _, ok := l.profiles[id]; !ok {
			added = append(added, id)
		}
	}
	sort.Strings(added)
	l.profiles = l.next
	return added, nil
}

func testProfile(id string) ircode.Profile {
	return ircode.Profile{
		ID:             id,
		FriendlyName:   strings.ReplaceAll(id, "_", " "),
		IRDeviceTopic:  "ZS06_" + id,
		SupportedModes: []climate.Mode{climate.ModeCool, climate.ModeHeat},
		Codes: []ircode.RecordedCode{
			{Power: false, Code: "OFF"},
			{Power: true, Mode: climate.ModeCool, FanSpeed: climate.FanAuto, Temperature: 22, Code: "C22A"},
		},
	}
}

// mockStore implements StateStore.
type mockStore struct {
	mu      sync.Mutex
	states  map[string]climate.State
	listErr error
	seeded  []string
}

func newMockStore() *mockStore {
	return &mockStore{states: make(map[string]climate.State)}
}

func (s *mockStore) Seed(_ context.Context, id string, st climate.State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; ok {
		return false, nil
	}
	s.states[id] = st
	s.seeded = append(s.seeded, id)
	return true, nil
}

func (s *mockStore) List(context.Context) (map[string]climate.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make(map[string]climate.State, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out, nil
}

func (s *mockStore) set(id string, st climate.State) {
	s.mu.Lock()
	s.states[id] = st
	s.mu.Unlock()
}

// dispatchCall records one Dispatch invocation.
type dispatchCall struct {
	DeviceID, Kind, Raw string
	HasDeadline         bool
}

type mockDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *mockDispatcher) Dispatch(ctx context.Context, id, kind, raw string) (command.Result, error) {
	_, hasDeadline := ctx.Deadline()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{DeviceID: id, Kind: kind, Raw: raw, HasDeadline: hasDeadline})
	return command.Result{CommandID: "cmd-1"}, d.err
}

func (d *mockDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

var (
	errBroker = errors.New("broker unavailable")
	fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)
