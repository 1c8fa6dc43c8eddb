package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
	"github.com/nerrad567/gray-logic-acbridge/internal/state"
)

// effectTimeout bounds the persist and publish steps once an IR code has
// been sent.
const effectTimeout = 10 * time.Second

// Kind describes one command kind.
//
// Validate must return an error of kind climate.ErrInvalidCommand whose
// message lists the legal values. Apply must be pure and total.
type Kind[T any] struct {
	Label    string
	Validate func(raw string) (T, error)
	Apply    func(current climate.State, value T) climate.State
}

// Env bundles the pipeline's collaborators. States, Library and Transport
// are required; the rest fall back to no-ops.
type Env struct {
	States    StateStore
	Library   LibrarySource
	Transport Transport
	Publisher Publisher
	Errors    ErrorChannel
	Logger    Logger
	Now       func() time.Time
}

func (e Env) withDefaults() Env {
	if e.Publisher == nil {
		e.Publisher = noopPublisher{}
	}
	if e.Errors == nil {
		e.Errors = noopErrors{}
	}
	if e.Logger == nil {
		e.Logger = noopLogger{}
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return e
}

// Execute runs one command for deviceID.
//
// On success the new state has been sent, persisted and published, and the
// device error is cleared. On failure the error message is set on the
// device's error channel and the error is returned unchanged.
//
// Parameters:
//   - ctx: Bounds lookup and send; persist and publish outlive its
//     cancellation once the code has been sent
//   - env: Collaborators
//   - deviceID: Target AC unit
//   - raw: Command payload as received
//   - kind: Validation and transition for this command kind
//
// Returns:
//   - climate.State: The state now believed current
//   - error: A climate error kind, ErrTransport, or a storage error
func Execute[T any](ctx context.Context, env Env, deviceID, raw string, kind Kind[T]) (climate.State, error) {
	env = env.withDefaults()

	st, err := execute(ctx, env, deviceID, raw, kind)
	if err != nil {
		env.Logger.Error("command failed",
			"device_id", deviceID,
			"kind", kind.Label,
			"value", raw,
			"error", err,
		)
		env.Errors.SetError(deviceID, climate.Message(err))
		return climate.State{}, err
	}

	env.Errors.ClearError(deviceID)
	return st, nil
}

func execute[T any](ctx context.Context, env Env, deviceID, raw string, kind Kind[T]) (climate.State, error) {
	current, profile, err := lookup(ctx, env, deviceID)
	if err != nil {
		return climate.State{}, err
	}

	value, err := kind.Validate(raw)
	if err != nil {
		return climate.State{}, err
	}
	candidate := kind.Apply(current, value)

	code, err := ircode.Resolve(profile, candidate)
	if err != nil {
		return climate.State{}, err
	}

	env.Logger.Debug("sending IR code",
		"device_id", deviceID,
		"ir_topic", profile.IRDeviceTopic,
		"power", candidate.Power,
		"mode", candidate.Mode,
		"temperature", candidate.Temperature,
		"fan_speed", candidate.FanSpeed,
	)
	if err := env.Transport.Send(ctx, profile.IRDeviceTopic, code); err != nil {
		return climate.State{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	// The unit has the code now. Persist and publish even if the caller
	// gives up, or the stored state would disagree with the unit.
	effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectTimeout)
	defer cancel()

	candidate.LastUpdated = env.Now().UTC()
	if err := env.States.Put(effectCtx, deviceID, candidate); err != nil {
		return climate.State{}, fmt.Errorf("saving state: %w", err)
	}

	if err := env.Publisher.PublishState(effectCtx, deviceID, candidate); err != nil {
		env.Logger.Warn("publishing state failed", "device_id", deviceID, "error", err)
	}

	return candidate, nil
}

// lookup loads the current state and profile. Either one missing means the
// device is not available.
func lookup(ctx context.Context, env Env, deviceID string) (climate.State, ircode.Profile, error) {
	notFound := climate.Errorf(climate.ErrDeviceNotFound,
		"AC %s not found or not properly configured", deviceID)

	profile, ok := env.Library.Profile(deviceID)
	if !ok {
		return climate.State{}, ircode.Profile{}, notFound
	}

	current, err := env.States.Get(ctx, deviceID)
	if errors.Is(err, state.ErrStateNotFound) {
		return climate.State{}, ircode.Profile{}, notFound
	}
	if err != nil {
		return climate.State{}, ircode.Profile{}, fmt.Errorf("loading state: %w", err)
	}

	return current, profile, nil
}
