package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommand = "ac_command"
	MeasurementState   = "ac_state"
)

// Command outcomes used as the "outcome" tag.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// WriteCommandMetric records one pipeline execution.
//
// Parameters:
//   - deviceID: AC unit identifier
//   - kind: Command kind label ("mode", "temperature", "fan_mode")
//   - outcome: OutcomeOK, or an error kind such as "no_matching_code"
//   - duration: Time from lookup to the end of the effect step
func (c *Client) WriteCommandMetric(deviceID, kind, outcome string, duration time.Duration) {
	c.writePoint(commandPoint(deviceID, kind, outcome, duration, time.Now()))
}

// WriteStateMetric records the state an AC unit was driven to.
func (c *Client) WriteStateMetric(deviceID string, power bool, mode, fanSpeed string, temperature int) {
	c.writePoint(statePoint(deviceID, power, mode, fanSpeed, temperature, time.Now()))
}

func commandPoint(deviceID, kind, outcome string, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
			"outcome":   outcome,
		},
		map[string]any{
			"duration_ms": float64(duration) / float64(time.Millisecond),
			"ok":          outcome == OutcomeOK,
		},
		ts,
	)
}

func statePoint(deviceID string, power bool, mode, fanSpeed string, temperature int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementState,
		map[string]string{
			"device_id": deviceID,
			"mode":      mode,
			"fan_speed": fanSpeed,
		},
		map[string]any{
			"power":       power,
			"temperature": temperature,
		},
		ts,
	)
}
