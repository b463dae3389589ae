// Package flow implements the multi-party signing protocol.
//
// A Node runs protocol instances on behalf of one party. The initiating
// side builds a transaction, signs it, collects a signature from every
// other required signer, verifies the result and hands it to the notary.
// The responding side decides whether to sign a proposal and records the
// finalized transaction.
//
// # Initiator
//
//	Building -> SigningSelf -> CollectingSignatures -> Verifying -> Finalizing -> Done
//
// Any step may end in Failed. Nothing is recorded unless the notary
// finalizes the transaction.
//
// # Responder
//
//	AwaitingRole -> Signing -> AwaitingFinalization -> Done
//	AwaitingRole -> Idle -> AwaitingFinalization -> Done
//
// Participants (new holders that need not sign) go through Idle.
//
// Every transition is reported to an Observer. CheckpointObserver writes
// them to durable storage.
package flow
