// Package bridge connects the command pipeline to MQTT and Home Assistant.
//
// It provides the MQTT-facing collaborators the pipeline needs:
//
//   - ZigbeeTransport sends IR codes to zigbee2mqtt blasters
//   - StatePublisher publishes retained state topics
//   - ErrorStatus keeps the last error per device and publishes it
//
// and the Bridge itself, which:
//
//   - subscribes to accontroller/{id}/{mode,temperature,fan_mode}/set
//   - routes each message to the command dispatcher
//   - handles accontroller/config/reload
//   - publishes Home Assistant discovery
//   - runs the Announcer's periodic availability, state and discovery jobs
//
// Thread Safety: All exported types are safe for concurrent use.
package bridge
