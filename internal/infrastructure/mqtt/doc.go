// Package mqtt provides the broker connection for the AC bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and a bounded acknowledgment wait
//   - Subscriptions that survive reconnects
//   - Last Will and Testament on accontroller/bridge/status
//   - Topic builders for command, state, IR blaster and discovery topics
//
// # Topic layout
//
//	accontroller/{id}/{mode|temperature|fan_mode}/set   commands in
//	accontroller/{id}/{mode|temperature|fan_mode|...}   retained state out
//	zigbee2mqtt/{ir_topic}/set                          IR blaster commands
//	homeassistant/climate/{id}/config                   discovery
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.ModeSet("living_room"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleMode(payload)
//	    })
package mqtt
