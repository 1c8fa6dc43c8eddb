// Package learn captures IR codes from a zigbee2mqtt IR blaster.
//
// The blaster is put into learning mode by publishing
// {"learn_ir_code": true} to zigbee2mqtt/{topic}/set. When the user points
// the original remote at it and presses a button, the blaster reports
// {"learned_ir_code": "..."} on zigbee2mqtt/{topic}.
//
// Capture combines a learn with a library Record, so one call turns a
// button press into a stored (state, code) entry.
package learn
