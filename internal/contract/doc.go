// Package contract implements the token verification engine.
//
// Verify is a pure function of (inputs, outputs, command, signer keys):
// no I/O, no clock, no randomness. Every party runs it independently and
// must reach the same verdict, so rule checks run in a fixed order and
// per-issuer iteration is sorted.
//
// Rule families:
//   - Issue:  no inputs, some outputs, every output issuer signs
//   - Move:   some inputs and outputs, per-issuer sums conserved, every
//     input holder signs
//   - Redeem: some inputs, no outputs, every input issuer and holder signs
//
// Rejections are *RejectionError values carrying a Code so callers can tell
// shape, conservation, overflow and authorization failures apart.
package contract
