// Package harness runs ledger scenarios written in YAML against a real
// in-process network.
//
// A scenario names the parties, then lists steps. Each step has one party
// initiate an operation (issue, move, redeem or redeem_by_amount) through
// its flow.Node. Steps refer to the outputs of earlier steps as
// "<step>:<index>", so scenarios never spell out transaction ids.
//
//	name: move_to_new_holder
//	description: Bob moves tokens issued to him by Alice to Carly
//	parties: [Alice, Bob, Carly]
//	flow:
//	  - id: issued
//	    party: Alice
//	    op: issue
//	    outputs: [{holder: Bob, quantity: 100}]
//	  - id: moved
//	    party: Bob
//	    op: move
//	    inputs: ["issued:0"]
//	    outputs: [{issuer: Alice, holder: Carly, quantity: 100}]
//	assertions:
//	  - type: balance
//	    party: Carly
//	    expect: {Alice: 100}
//
// # Determinism
//
// Every run uses fresh stores, fixed key seeds and step-relative
// references. The trace records what each step did in those terms, so it
// is byte-for-byte stable and can be compared against a golden file.
//
// # Assertions
//
//   - balance: the issuer sums a party holds after the flow
//   - trace_contains: some step matches op, party and outcome
//   - trace_count: exactly count steps match
//   - trace_order: the named steps succeeded in this order
package harness
