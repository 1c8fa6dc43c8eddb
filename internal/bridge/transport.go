package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
)

// irSendPayload is the zigbee2mqtt command that makes a blaster emit a code.
type irSendPayload struct {
	IRCodeToSend string `json:"ir_code_to_send"`
}

// ZigbeeTransport sends IR codes through zigbee2mqtt. Implements
// command.Transport.
type ZigbeeTransport struct {
	mqtt MQTTClient
	qos  byte
}

// NewZigbeeTransport creates a transport publishing at the given QoS.
func NewZigbeeTransport(client MQTTClient, qos byte) *ZigbeeTransport {
	return &ZigbeeTransport{mqtt: client, qos: qos}
}

// Send publishes {"ir_code_to_send": code} to zigbee2mqtt/{deviceTopic}/set.
func (t *ZigbeeTransport) Send(ctx context.Context, deviceTopic, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deviceTopic == "" {
		return fmt.Errorf("ir device topic is empty")
	}

	payload, err := json.Marshal(irSendPayload{IRCodeToSend: code})
	if err != nil {
		return fmt.Errorf("encoding IR payload: %w", err)
	}
	return t.mqtt.Publish(mqtt.Topics{}.IRSet(deviceTopic), payload, t.qos, false)
}
