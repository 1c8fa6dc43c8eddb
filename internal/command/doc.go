// Package command runs AC commands through one generic pipeline.
//
// Every command kind (mode, temperature, fan_mode) is a Kind[T]: a validate
// function that turns the raw payload into a T, and a pure apply function
// that folds T into the current state. Execute does the rest:
//
//	lookup -> validate -> apply -> resolve -> send -> persist -> publish -> clear error
//
// Any failure stops the pipeline, is reported to the device's error channel
// and returned. Nothing is persisted unless the IR code was sent.
//
// The Dispatcher is the entry point used by MQTT and the API. It serialises
// commands per device, assigns each a command ID and reports metrics.
package command
