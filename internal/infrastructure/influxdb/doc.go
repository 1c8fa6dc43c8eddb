// Package influxdb writes bridge metrics to InfluxDB 2.x.
//
// Two measurements are produced:
//
//	ac_command  tags: device_id, kind, outcome     fields: duration_ms, ok
//	ac_state    tags: device_id, mode, fan_speed   fields: power, temperature
//
// The integration is optional. Connect returns ErrDisabled when
// influxdb.enabled is false and callers carry on without metrics.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
//
//	client.WriteCommandMetric("living_room", "mode", influxdb.OutcomeOK, 40*time.Millisecond)
//
// Writes are batched and non-blocking (batch_size, flush_interval).
package influxdb
