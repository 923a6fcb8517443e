// Package tasks implements the conversion task store: transition legality,
// fingerprint-based upsert and reset, attempt accounting with backoff
// deadlines, and the in-memory lease table that guarantees no two workers
// ever hold the same task key concurrently.
//
// Durable persistence is delegated to a ports.TaskBackend (sqlite, redis or
// memory); this package owns every rule about what may be written.
package tasks
