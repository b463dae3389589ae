package harness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/flow"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/notary"
)

func TestRun_Redeem(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: redeem
description: Bob redeems with Alice countersigning
parties: [Alice, Bob]
flow:
  - id: issued
    party: Alice
    op: issue
    outputs: [{holder: Bob, quantity: 7}]
  - id: redeemed
    party: Bob
    op: redeem
    inputs: ["issued:0"]
assertions:
  - type: balance
    party: Bob
  - type: trace_order
    steps: [issued, redeemed]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	ev := result.Trace[1]
	assert.Equal(t, []string{"Alice", "Bob"}, ev.Signers)
	assert.Equal(t, []string{"issued:0"}, ev.Inputs)
	assert.Empty(t, ev.Outputs)
	assert.Empty(t, result.Balances["Bob"])
}

func TestRun_ExpectationMismatchReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatch
description: Expectations that do not hold fail the result
parties: [Alice, Bob]
flow:
  - id: issued
    party: Alice
    op: issue
    outputs: [{holder: Bob, quantity: 7}]
    expect: {outcome: error}
  - id: stolen
    party: Bob
    op: redeem
    inputs: ["issued:0"]
    expect: {outcome: error, reason: nope}
assertions:
  - type: balance
    party: Bob
    expect: {Alice: 8}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "flow[0] issued: expected error, got ok")
	assert.Contains(t, result.Errors[1], "flow[1] stolen: expected error, got ok")
	assert.Contains(t, result.Errors[2], "Bob holds Alice=8")
}

func TestRun_FailedSetupIsAnError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_setup
description: Setup steps must succeed
parties: [Alice, Bob]
setup:
  - id: zero
    party: Alice
    op: issue
    outputs: [{holder: Bob, quantity: 0}]
flow:
  - id: issued
    party: Alice
    op: issue
    outputs: [{holder: Bob, quantity: 1}]
assertions:
  - type: balance
    party: Bob
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] zero")
}

func TestRun_InvalidTimeout(t *testing.T) {
	scenario, err := ParseScenario([]byte(validScenario + "signature_timeout: soon\n"))
	require.NoError(t, err)
	_, err = Run(scenario)
	require.Error(t, err)
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"protocol", &flow.ProtocolError{Counterparty: "Bob", Reason: flow.MsgMustBeRelevant}, flow.MsgMustBeRelevant},
		{"precondition", fmt.Errorf("wrapped: %w", &flow.PreconditionError{Reason: flow.MsgSingleNotary}), flow.MsgSingleNotary},
		{"rejection", &contract.RejectionError{Code: contract.ErrCodeConservation, Message: contract.MsgSumConserved}, contract.MsgSumConserved},
		{"conflict", &notary.ConflictError{TxID: "t2", Ref: ledger.StateRef{TxID: "t1"}, ConsumedBy: "t0"}, "input already consumed"},
		{"timeout", fmt.Errorf("%w after 1s", flow.ErrTimeout), "timed out collecting signatures"},
		{"not enough", fmt.Errorf("%w: found 1 of 2", flow.ErrNotEnoughStates), flow.MsgNotEnoughStates},
		{"quantity", fmt.Errorf("issue: %w", ledger.ErrNonPositiveQuantity), "quantity must be above 0"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonOf(tt.err))
		})
	}
}
