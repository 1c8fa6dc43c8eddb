package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes used by the AC bridge.
const (
	// TopicPrefixController is the base for all AC controller topics.
	TopicPrefixController = "accontroller"

	// TopicPrefixZigbee is the base for zigbee2mqtt device topics (the IR blaster).
	TopicPrefixZigbee = "zigbee2mqtt"

	// DefaultDiscoveryPrefix is Home Assistant's default discovery prefix.
	DefaultDiscoveryPrefix = "homeassistant"
)

// Command attributes accepted on accontroller/{id}/{attribute}/set.
const (
	AttrMode        = "mode"
	AttrTemperature = "temperature"
	AttrFanMode     = "fan_mode"
)

// Topics provides builders for the AC bridge MQTT topics.
// Using these helpers keeps topic naming consistent between the bridge,
// the discovery payloads and the operator CLI.
//
//	topics := mqtt.Topics{}
//	topics.ModeSet("living_room") // "accontroller/living_room/mode/set"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeStatus returns the bridge status topic, also used as the LWT topic.
func (Topics) BridgeStatus() string {
	return TopicPrefixController + "/bridge/status"
}

// ConfigReload returns the topic that triggers a device library reload.
func (Topics) ConfigReload() string {
	return TopicPrefixController + "/config/reload"
}

// ConfigReloadStatus returns the topic carrying the reload outcome.
func (Topics) ConfigReloadStatus() string {
	return TopicPrefixController + "/config/reload/status"
}

// =============================================================================
// Command Topics
// =============================================================================

// CommandSet returns accontroller/{id}/{attribute}/set.
func (Topics) CommandSet(deviceID, attribute string) string {
	return fmt.Sprintf("%s/%s/%s/set", TopicPrefixController, deviceID, attribute)
}

// ModeSet returns the mode command topic for a device.
func (t Topics) ModeSet(deviceID string) string {
	return t.CommandSet(deviceID, AttrMode)
}

// TemperatureSet returns the temperature command topic for a device.
func (t Topics) TemperatureSet(deviceID string) string {
	return t.CommandSet(deviceID, AttrTemperature)
}

// FanModeSet returns the fan mode command topic for a device.
func (t Topics) FanModeSet(deviceID string) string {
	return t.CommandSet(deviceID, AttrFanMode)
}

// ParseCommandTopic extracts the device ID and attribute from a command topic.
//
// Returns ok=false if the topic is not of the form accontroller/{id}/{attribute}/set.
func (Topics) ParseCommandTopic(topic string) (deviceID, attribute string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefixController || parts[3] != "set" {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// =============================================================================
// State Topics
// =============================================================================

// DeviceState returns accontroller/{id}/{attribute}.
func (Topics) DeviceState(deviceID, attribute string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixController, deviceID, attribute)
}

// Mode returns the mode state topic. Carries "off" while powered off.
func (t Topics) Mode(deviceID string) string {
	return t.DeviceState(deviceID, AttrMode)
}

// Temperature returns the target temperature state topic.
func (t Topics) Temperature(deviceID string) string {
	return t.DeviceState(deviceID, AttrTemperature)
}

// CurrentTemperature returns the current temperature topic.
// IR units have no sensor, so the target temperature is echoed.
func (t Topics) CurrentTemperature(deviceID string) string {
	return t.DeviceState(deviceID, "current_temperature")
}

// FanMode returns the fan mode state topic.
func (t Topics) FanMode(deviceID string) string {
	return t.DeviceState(deviceID, AttrFanMode)
}

// Action returns the HVAC action topic (cooling, heating, idle, off).
func (t Topics) Action(deviceID string) string {
	return t.DeviceState(deviceID, "action")
}

// Error returns the device error topic. An empty payload clears the error.
func (t Topics) Error(deviceID string) string {
	return t.DeviceState(deviceID, "error")
}

// Availability returns the device availability topic (online/offline).
func (t Topics) Availability(deviceID string) string {
	return t.DeviceState(deviceID, "availability")
}

// =============================================================================
// IR Blaster Topics
// =============================================================================

// IRDevice returns the zigbee2mqtt topic the blaster publishes on.
//
// Example: zigbee2mqtt/ZS06_living
func (Topics) IRDevice(irTopic string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixZigbee, irTopic)
}

// IRSet returns the zigbee2mqtt topic used to drive the blaster.
//
// Example: zigbee2mqtt/ZS06_living/set
func (Topics) IRSet(irTopic string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefixZigbee, irTopic)
}

// =============================================================================
// Home Assistant Discovery Topics
// =============================================================================

// ClimateDiscovery returns the climate entity config topic.
//
// Example: homeassistant/climate/living_room/config
func (Topics) ClimateDiscovery(prefix, deviceID string) string {
	return fmt.Sprintf("%s/climate/%s/config", prefix, deviceID)
}

// ErrorSensorDiscovery returns the error sensor config topic.
//
// Example: homeassistant/sensor/living_room_error/config
func (Topics) ErrorSensorDiscovery(prefix, deviceID string) string {
	return fmt.Sprintf("%s/sensor/%s_error/config", prefix, deviceID)
}
