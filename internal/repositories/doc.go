// Package repositories implements SQLite persistence for the subx domain entities.
//
// Key Implementations:
//   - [ServerRepository] : Server profile persistence with transactional activation
//   - [QueueSnapshotRepository] : Play queue checkpoints keyed by server id
//
// Sequence numbers provide stable, human-readable ordering (e.g., server #3) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
// The server registry relies on sequence order for its "most recently added" promotion rule.
package repositories
