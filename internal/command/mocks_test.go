package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
	"github.com/nerrad567/gray-logic-acbridge/internal/state"
)

type mockStore struct {
	mu     sync.Mutex
	states map[string]climate.State
	puts    int
	sources []string
	getErr  error
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{states: make(map[string]climate.State)}
}

func (m *mockStore) Get(_ context.Context, id string) (climate.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return climate.State{}, m.getErr
	}
	st, ok := m.states[id]
	if !ok {
		return climate.State{}, fmt.Errorf("%w: %s", state.ErrStateNotFound, id)
	}
	return st, nil
}

func (m *mockStore) Put(ctx context.Context, id string, st climate.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	// database/sql refuses to start a transaction on a done context.
	if err := ctx.Err(); err != nil {
		return err
	}
	m.puts++
	m.sources = append(m.sources, state.SourceFrom(ctx))
	m.states[id] = st
	return nil
}

func (m *mockStore) get(id string) climate.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

type mockLibrary map[string]ircode.Profile

func (m mockLibrary) Profile(id string) (ircode.Profile, bool) {
	p, ok := m[id]
	return p.Clone(), ok
}

type sentCode struct {
	topic string
	code  string
}

type mockTransport struct {
	mu    sync.Mutex
	sent  []sentCode
	err    error
	delay  time.Duration
	onSend func()

	active    int
	maxActive int
}

func (m *mockTransport) Send(_ context.Context, topic, code string) error {
	m.mu.Lock()
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()

	time.Sleep(m.delay)
	if m.onSend != nil {
		m.onSend()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{topic, code})
	return nil
}

func (m *mockTransport) sentCodes() []sentCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentCode(nil), m.sent...)
}

type mockPublisher struct {
	mu        sync.Mutex
	published []climate.State
	err       error
}

func (m *mockPublisher) PublishState(_ context.Context, _ string, st climate.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, st)
	return m.err
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

type mockErrors struct {
	mu     sync.Mutex
	errors map[string]string
	clears int
}

func newMockErrors() *mockErrors {
	return &mockErrors{errors: make(map[string]string)}
}

func (m *mockErrors) SetError(id, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[id] = msg
}

func (m *mockErrors) ClearError(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	delete(m.errors, id)
}

func (m *mockErrors) get(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.errors[id]
	return msg, ok
}

type recordedCommand struct {
	deviceID string
	kind     string
	err      error
}

type mockRecorder struct {
	mu       sync.Mutex
	commands []recordedCommand
	states   []climate.State
}

func (m *mockRecorder) RecordCommand(deviceID, kind string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, recordedCommand{deviceID, kind, err})
}

func (m *mockRecorder) RecordState(_ string, st climate.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, st)
}

// fixture wires a pipeline environment around one cool-capable device.
type fixture struct {
	store     *mockStore
	library   mockLibrary
	transport *mockTransport
	publisher *mockPublisher
	errs      *mockErrors
	env       Env
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		store: newMockStore(),
		library: mockLibrary{
			"living_room": {
				ID:             "living_room",
				FriendlyName:   "Living Room AC",
				IRDeviceTopic:  "ZS06_living",
				SupportedModes: []climate.Mode{climate.ModeAuto, climate.ModeCool},
				Codes: []ircode.RecordedCode{
					{Code: "OFF1"},
					{Power: true, Mode: climate.ModeCool, FanSpeed: climate.FanAuto, Temperature: 22, Code: "C22A"},
					{Power: true, Mode: climate.ModeCool, FanSpeed: climate.FanLow, Temperature: 16, Code: "C16L"},
					{Power: true, Mode: climate.ModeAuto, FanSpeed: climate.FanAuto, Temperature: 22, Code: "A22A"},
				},
			},
		},
		transport: &mockTransport{},
		publisher: &mockPublisher{},
		errs:      newMockErrors(),
	}
	f.store.states["living_room"] = climate.DefaultState(fixedNow.Add(-time.Hour))
	f.env = Env{
		States:    f.store,
		Library:   f.library,
		Transport: f.transport,
		Publisher: f.publisher,
		Errors:    f.errs,
		Now:       func() time.Time { return fixedNow },
	}
	return f
}

var errBroker = errors.New("broker unreachable")
