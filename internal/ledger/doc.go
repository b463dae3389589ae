// Package ledger defines the record model shared by every other package.
//
// It holds the immutable token records, the candidate transaction shape
// (inputs, outputs, command, proposed signers), state references and the
// content-addressed transaction identity. ledger imports nothing internal.
//
// Key constraints:
//   - TokenRecord quantity is positive; enforced by NewTokenRecord, never
//     re-checked at verification time
//   - Transaction IDs are SHA-256 over RFC 8785 canonical JSON with domain
//     separation, so every party computes the same ID independently
//   - All JSON tags use snake_case
package ledger
