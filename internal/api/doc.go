// Package api implements the HTTP REST API and WebSocket server for the AC bridge.
//
// This package provides:
//   - REST endpoints for device listing, state, state history and commands
//   - WebSocket hub broadcasting ac.state_changed and ac.error events
//   - JWT and API key authentication with operator/viewer roles
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Commands posted to /api/v1/devices/{id}/commands go through the same
// dispatcher as MQTT commands, so the error channel, state store and MQTT
// state topics stay consistent whichever surface a command came from.
// The hub is registered as one of the dispatcher's publishers.
//
// # Security
//
// With security.enabled false every route is open. Otherwise protected
// routes need a bearer token or an X-API-Key header; WebSocket clients
// pass the token as ?token= because browsers cannot set headers there.
//
// # Event stream
//
// /api/v1/ws sends one JSON frame per event:
//
//	{"type":"event","event":"ac.state_changed","device_id":"living_room","time":"...","data":{...}}
//
// A new session receives every device. Clients narrow or widen that with
//
//	{"type":"watch","ref":"1","devices":["living_room"]}
//	{"type":"unwatch","ref":"2"}              (empty list: back to all)
//
// and each is answered with an ack listing the devices now watched.
package api
