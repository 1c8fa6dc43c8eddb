// Package climate defines the vocabulary shared by every part of the AC
// bridge: operating modes, fan speeds, the logical state of a unit and the
// four command error kinds.
//
// Enumerations are parsed once at the edges (MQTT, API, CLI, library file)
// with ParseMode and ParseFanSpeed. Code deeper in the bridge compares typed
// values only.
package climate
