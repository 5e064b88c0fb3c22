// Package api exposes switchbridge accessories to a home-automation framework
// over HTTP and WebSocket.
//
// This package provides:
//   - REST endpoints to list accessories and read or set their characteristics
//   - WebSocket hub broadcasting every characteristic change
//   - Optional HS256 bearer auth, with single-use tickets for WebSocket
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The hub is handed to each accessory as its Notifier, so device reports
// reach WebSocket clients as soon as they are reconciled. A PUT on a
// characteristic is a user-originated set: the accessory records the value
// and publishes the power command to the device.
//
// # Graceful Degradation
//
// The server answers while a broker is down. Reads return the last known
// state, and sets are recorded locally and reported as unpublished (202).
package api
