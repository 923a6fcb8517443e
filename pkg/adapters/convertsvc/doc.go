// Package convertsvc is the HTTP client for the markup conversion service.
package convertsvc
