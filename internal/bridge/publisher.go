package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
)

// StatePublisher publishes device state as retained per-attribute topics.
// Implements command.Publisher.
type StatePublisher struct {
	mqtt   MQTTClient
	qos    byte
	topics mqtt.Topics
}

// NewStatePublisher creates a state publisher.
func NewStatePublisher(client MQTTClient, qos byte) *StatePublisher {
	return &StatePublisher{mqtt: client, qos: qos}
}

// PublishState publishes mode, temperature, current_temperature, fan_mode
// and action. Every topic is attempted; errors are joined.
//
// mode reads "off" while powered off. current_temperature mirrors the
// target, as IR units report nothing back.
func (p *StatePublisher) PublishState(ctx context.Context, deviceID string, st climate.State) error {
	temp := strconv.Itoa(st.Temperature)
	messages := []struct {
		topic   string
		payload string
	}{
		{p.topics.Mode(deviceID), st.DisplayMode()},
		{p.topics.Temperature(deviceID), temp},
		{p.topics.CurrentTemperature(deviceID), temp},
		{p.topics.FanMode(deviceID), string(st.FanSpeed)},
		{p.topics.Action(deviceID), st.Action()},
	}

	var errs []error
	for _, m := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.mqtt.Publish(m.topic, []byte(m.payload), p.qos, true); err != nil {
			errs = append(errs, fmt.Errorf("publishing %s: %w", m.topic, err))
		}
	}
	return errors.Join(errs...)
}

// PublishAll publishes every state in states, in device ID order.
func (p *StatePublisher) PublishAll(ctx context.Context, states map[string]climate.State) error {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := p.PublishState(ctx, id, states[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishAvailability publishes online or offline for a device.
func (p *StatePublisher) PublishAvailability(deviceID string, online bool) error {
	status := mqtt.StatusOffline
	if online {
		status = mqtt.StatusOnline
	}
	return p.mqtt.Publish(p.topics.Availability(deviceID), []byte(status), p.qos, true)
}
