package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
)

// Home Assistant device block constants.
const (
	discoveryModel        = "IR Remote Emulator"
	discoveryManufacturer = "AC Controller"
	errorSensorIcon       = "mdi:alert-circle"
)

// discoveryDevice groups the climate entity and error sensor in HA.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version"`
}

// climateConfig is the HA MQTT climate discovery payload.
type climateConfig struct {
	Name                    string          `json:"name"`
	UniqueID                string          `json:"unique_id"`
	ObjectID                string          `json:"object_id"`
	TemperatureUnit         string          `json:"temperature_unit"`
	TempStep                int             `json:"temp_step"`
	MinTemp                 int             `json:"min_temp"`
	MaxTemp                 int             `json:"max_temp"`
	Modes                   []string        `json:"modes"`
	FanModes                []string        `json:"fan_modes"`
	CurrentTemperatureTopic string          `json:"current_temperature_topic"`
	TemperatureCommandTopic string          `json:"temperature_command_topic"`
	TemperatureStateTopic   string          `json:"temperature_state_topic"`
	ModeCommandTopic        string          `json:"mode_command_topic"`
	ModeStateTopic          string          `json:"mode_state_topic"`
	FanModeCommandTopic     string          `json:"fan_mode_command_topic"`
	FanModeStateTopic       string          `json:"fan_mode_state_topic"`
	ActionTopic             string          `json:"action_topic"`
	AvailabilityTopic       string          `json:"availability_topic"`
	PayloadAvailable        string          `json:"payload_available"`
	PayloadNotAvailable     string          `json:"payload_not_available"`
	Device                  discoveryDevice `json:"device"`
}

// errorSensorConfig is the HA MQTT sensor discovery payload for the error topic.
type errorSensorConfig struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	ObjectID            string          `json:"object_id"`
	StateTopic          string          `json:"state_topic"`
	AvailabilityTopic   string          `json:"availability_topic"`
	PayloadAvailable    string          `json:"payload_available"`
	PayloadNotAvailable string          `json:"payload_not_available"`
	Icon                string          `json:"icon"`
	Device              discoveryDevice `json:"device"`
}

// Discovery publishes and removes Home Assistant discovery configs.
type Discovery struct {
	mqtt    MQTTClient
	qos     byte
	prefix  string
	version string
	topics  mqtt.Topics
}

// NewDiscovery creates a discovery publisher.
//
// Parameters:
//   - client: MQTT client
//   - qos: QoS for the retained config messages
//   - prefix: HA discovery prefix, normally "homeassistant"
//   - version: Reported as the device sw_version
func NewDiscovery(client MQTTClient, qos byte, prefix, version string) *Discovery {
	if prefix == "" {
		prefix = mqtt.DefaultDiscoveryPrefix
	}
	return &Discovery{mqtt: client, qos: qos, prefix: prefix, version: version}
}

// Publish sends the climate entity and error sensor configs for p.
func (d *Discovery) Publish(p ircode.Profile) error {
	climatePayload, err := json.Marshal(d.climateConfig(p))
	if err != nil {
		return fmt.Errorf("encoding climate discovery: %w", err)
	}
	sensorPayload, err := json.Marshal(d.errorSensorConfig(p))
	if err != nil {
		return fmt.Errorf("encoding error sensor discovery: %w", err)
	}

	return errors.Join(
		d.mqtt.Publish(d.topics.ClimateDiscovery(d.prefix, p.ID), climatePayload, d.qos, true),
		d.mqtt.Publish(d.topics.ErrorSensorDiscovery(d.prefix, p.ID), sensorPayload, d.qos, true),
	)
}

// Remove clears both discovery configs by publishing empty retained payloads.
func (d *Discovery) Remove(deviceID string) error {
	return errors.Join(
		d.mqtt.Publish(d.topics.ClimateDiscovery(d.prefix, deviceID), nil, d.qos, true),
		d.mqtt.Publish(d.topics.ErrorSensorDiscovery(d.prefix, deviceID), nil, d.qos, true),
	)
}

func (d *Discovery) device(p ircode.Profile) discoveryDevice {
	return discoveryDevice{
		Identifiers:  []string{uniqueID(p.ID)},
		Name:         p.FriendlyName,
		Model:        discoveryModel,
		Manufacturer: discoveryManufacturer,
		SWVersion:    d.version,
	}
}

func (d *Discovery) climateConfig(p ircode.Profile) climateConfig {
	modes := []string{string(climate.ModeOff)}
	for _, m := range p.SupportedModes {
		modes = append(modes, string(m))
	}
	fans := make([]string, 0, len(climate.AllFanSpeeds()))
	for _, f := range climate.AllFanSpeeds() {
		fans = append(fans, string(f))
	}

	t := d.topics
	return climateConfig{
		Name:                    p.FriendlyName,
		UniqueID:                uniqueID(p.ID),
		ObjectID:                p.ID,
		TemperatureUnit:         "C",
		TempStep:                climate.TemperatureStep,
		MinTemp:                 climate.MinTemperature,
		MaxTemp:                 climate.MaxTemperature,
		Modes:                   modes,
		FanModes:                fans,
		CurrentTemperatureTopic: t.CurrentTemperature(p.ID),
		TemperatureCommandTopic: t.TemperatureSet(p.ID),
		TemperatureStateTopic:   t.Temperature(p.ID),
		ModeCommandTopic:        t.ModeSet(p.ID),
		ModeStateTopic:          t.Mode(p.ID),
		FanModeCommandTopic:     t.FanModeSet(p.ID),
		FanModeStateTopic:       t.FanMode(p.ID),
		ActionTopic:             t.Action(p.ID),
		AvailabilityTopic:       t.Availability(p.ID),
		PayloadAvailable:        mqtt.StatusOnline,
		PayloadNotAvailable:     mqtt.StatusOffline,
		Device:                  d.device(p),
	}
}

func (d *Discovery) errorSensorConfig(p ircode.Profile) errorSensorConfig {
	return errorSensorConfig{
		Name:                p.FriendlyName + " Error",
		UniqueID:            uniqueID(p.ID) + "_error",
		ObjectID:            p.ID + "_error",
		StateTopic:          d.topics.Error(p.ID),
		AvailabilityTopic:   d.topics.Availability(p.ID),
		PayloadAvailable:    mqtt.StatusOnline,
		PayloadNotAvailable: mqtt.StatusOffline,
		Icon:                errorSensorIcon,
		Device:              d.device(p),
	}
}

func uniqueID(deviceID string) string {
	return "ac_controller_" + deviceID
}
