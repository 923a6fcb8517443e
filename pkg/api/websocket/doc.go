// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/events/ws to receive task and scan events as the
// pipeline runs, optionally filtered to one page with ?page=<id>.
package websocket
