// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Live pipeline configuration reads and updates
//   - Task browsing and status queries
//   - Health checks
//   - Prometheus metrics
package http
