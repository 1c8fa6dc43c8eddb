package command

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

// Result is the outcome of a dispatched command.
type Result struct {
	CommandID string        `json:"command_id"`
	State     climate.State `json:"state"`
}

// Dispatcher routes raw commands to their Kind and runs them.
//
// Commands for the same device run one at a time, so the lookup-to-persist
// sequence never interleaves. Different devices proceed in parallel.
//
// Thread Safety: Dispatch is safe for concurrent use. SetRecorder and
// SetLogger must be called before the first Dispatch.
type Dispatcher struct {
	env      Env
	recorder Recorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(env Env) *Dispatcher {
	return &Dispatcher{
		env:   env.withDefaults(),
		locks: make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger used for command logs.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.env.Logger = logger
}

// SetRecorder sets the metrics recorder. Nil disables metrics.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// Dispatch runs one command.
//
// Parameters:
//   - ctx: Passed to the pipeline's collaborators
//   - deviceID: Target AC unit
//   - kind: KindMode, KindTemperature or KindFanMode
//   - raw: Payload as received
//
// Returns:
//   - Result: Command ID and the new state
//   - error: Pipeline error; Result.CommandID is set even on failure
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID, kind, raw string) (Result, error) {
	res := Result{CommandID: uuid.NewString()}
	env := d.env
	env.Logger = attrLogger{Logger: d.env.Logger, attrs: []any{"command_id", res.CommandID}}

	unlock := d.lock(deviceID)
	defer unlock()

	start := time.Now()
	var err error
	switch kind {
	case KindMode:
		res.State, err = Execute(ctx, env, deviceID, raw, ModeCommand)
	case KindTemperature:
		res.State, err = Execute(ctx, env, deviceID, raw, TemperatureCommand)
	case KindFanMode:
		res.State, err = Execute(ctx, env, deviceID, raw, FanModeCommand)
	default:
		err = errUnknownKind(kind)
		env.Logger.Error("command failed", "device_id", deviceID, "kind", kind, "value", raw, "error", err)
		env.Errors.SetError(deviceID, climate.Message(err))
	}
	elapsed := time.Since(start)

	if d.recorder != nil {
		d.recorder.RecordCommand(deviceID, kind, err, elapsed)
		if err == nil {
			d.recorder.RecordState(deviceID, res.State)
		}
	}
	if err != nil {
		return res, err
	}

	env.Logger.Info("command executed",
		"device_id", deviceID,
		"kind", kind,
		"value", raw,
		"state", describe(res.State),
		"duration", elapsed,
	)
	return res, nil
}

// lock acquires the device's mutex and returns its release.
func (d *Dispatcher) lock(deviceID string) func() {
	d.mu.Lock()
	m, ok := d.locks[deviceID]
	if !ok {
		m = &sync.Mutex{}
		d.locks[deviceID] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// attrLogger appends fixed attributes to every call.
type attrLogger struct {
	Logger
	attrs []any
}

func (l attrLogger) Debug(msg string, args ...any) { l.Logger.Debug(msg, append(args, l.attrs...)...) }
func (l attrLogger) Info(msg string, args ...any)  { l.Logger.Info(msg, append(args, l.attrs...)...) }
func (l attrLogger) Warn(msg string, args ...any)  { l.Logger.Warn(msg, append(args, l.attrs...)...) }
func (l attrLogger) Error(msg string, args ...any) { l.Logger.Error(msg, append(args, l.attrs...)...) }
