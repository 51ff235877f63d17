// Package runs holds live run trees and keeps remote copies of them in sync.
//
// Tracker is the engine-facing side: it materializes runs, applies node
// updates under a per-run lock, reconciles flow statuses after every update,
// and serves snapshots and deltas. Each update gets a timestamp strictly later
// than the previous one in the same run, so a delta taken at the returned
// watermark never misses a change.
//
// Mirror is the coordinator-facing side: it loads one snapshot, then applies
// deltas since the last watermark. A *delta.ProtocolError means the copy has
// drifted; the mirror discards it and reloads a snapshot.
//
// Auditing:
//   - A change of a run's root status emits one run-level audit event.
//   - Updates rejected by the node setters emit nothing.
package runs
