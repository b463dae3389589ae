// Package store provides SQLite-backed durable storage for a ledgerflow
// node.
//
// The store holds:
//   - Transactions: finalized transactions, keyed by content-addressed id
//   - Records: the token records those transactions produced, with the id
//     of the transaction that consumed them (the vault)
//   - Spent refs: the notary's register of consumed inputs
//   - Signatures: the signatures this node produced, one per (tx, party)
//   - Flow checkpoints: protocol state transitions per flow instance
//
// # Invariants
//
// Idempotent writes
//   - Recording the same transaction twice is a no-op
//   - A signature is written once; redelivery returns the stored one
//
// Logical time
//   - All ordering uses seq INTEGER (logical clock), never timestamps
//
// Deterministic query results
//   - Every list query orders by seq ASC, then its key COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
