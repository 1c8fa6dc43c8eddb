package main

import (
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
)

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// metricsWriter is the subset of *influxdb.Client used for command metrics.
type metricsWriter interface {
	WriteCommandMetric(deviceID, kind, outcome string, duration time.Duration)
	WriteStateMetric(deviceID string, power bool, mode, fanSpeed string, temperature int)
}

// influxRecorder implements command.Recorder on top of InfluxDB.
type influxRecorder struct {
	client metricsWriter
}

// RecordCommand writes an ac_command point. The outcome tag is the error
// kind, or "ok".
func (r influxRecorder) RecordCommand(deviceID, kind string, err error, duration time.Duration) {
	outcome := influxdb.OutcomeOK
	if err != nil {
		outcome = climate.KindName(err)
	}
	r.client.WriteCommandMetric(deviceID, kind, outcome, duration)
}

// RecordState writes an ac_state point.
func (r influxRecorder) RecordState(deviceID string, st climate.State) {
	r.client.WriteStateMetric(deviceID, st.Power, string(st.Mode), string(st.FanSpeed), st.Temperature)
}
