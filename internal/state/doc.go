// Package state persists the believed logical state of each AC unit.
//
// One row per device lives in ac_states. Every write also appends a JSON
// snapshot to state_history in the same transaction, giving a local audit
// trail that the API exposes newest-first.
//
// IR control is one-way, so this is the only record of what the unit is
// doing. It changes only after a code has been transmitted.
package state
