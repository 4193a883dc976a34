// Package schedule persists the queue of posts awaiting delivery.
//
// The store is a durable mapping of item id -> Item with a "due"
// query. Every mutation is computed against a fully-read snapshot and
// persisted as a single all-or-nothing replace, so a crash mid-write never
// leaves a half-written store.
//
// Drivers:
//   - "file": single JSON document, written to a temp file and renamed
//   - "sqlite": SQLite database (build with -tags sqlite)
//
// The store records intent; the delivery journal records fact. Only the
// runner moves items out of StatusPending (except cancellation, which is a
// user action).
package schedule
