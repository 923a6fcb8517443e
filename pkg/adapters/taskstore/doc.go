// Package taskstore provides conversion task persistence backends.
//
// Implementations:
//   - sqlite: gorm over SQLite, the default durable store
//   - redis: JSON records with a sorted-set eligibility index
//   - memory: in-memory for testing and development
//
// Backends implement raw storage only; transition legality and leasing live
// in the application task store layered on top.
package taskstore
