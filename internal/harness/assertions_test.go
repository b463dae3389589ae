package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Step: "issued", Party: "Alice", Op: OpIssue, Outcome: OutcomeOK},
		{Seq: 2, Step: "stolen", Party: "Carly", Op: OpMove, Outcome: OutcomeError, Reason: "I must be a holder."},
		{Seq: 3, Step: "moved", Party: "Bob", Op: OpMove, Outcome: OutcomeOK},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpMove}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpMove, Party: "Carly", Outcome: OutcomeError}))

	err := assertTraceContains(trace, Assertion{Op: OpRedeem})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "[2] stolen move by Carly: error (I must be a holder.)")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpMove, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpMove, Outcome: OutcomeOK, Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpRedeem, Count: 0}))

	err := assertTraceCount(trace, Assertion{Op: OpIssue, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 1 times")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Steps: []string{"issued", "moved"}}))

	err := assertTraceOrder(trace, Assertion{Steps: []string{"moved", "issued"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moved (seq 3) should be before issued (seq 1)")

	err = assertTraceOrder(trace, Assertion{Steps: []string{"issued", "stolen"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step stolen did not succeed")
}

func TestAssertBalance(t *testing.T) {
	balances := map[string]map[string]int64{
		"Bob":   {"Alice": 5, "Carly": 2},
		"Carly": {},
	}

	assert.NoError(t, assertBalance(balances, Assertion{Party: "Bob", Expect: map[string]int64{"Alice": 5, "Carly": 2}}))
	assert.NoError(t, assertBalance(balances, Assertion{Party: "Carly"}))
	assert.NoError(t, assertBalance(balances, Assertion{Party: "Dan"}))

	err := assertBalance(balances, Assertion{Party: "Bob", Expect: map[string]int64{"Alice": 5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: Bob holds Alice=5")
	assert.Contains(t, err.Error(), "Actual: Alice=5, Carly=2")

	err = assertBalance(balances, Assertion{Party: "Carly", Expect: map[string]int64{"Alice": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: nothing")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.Balances["Bob"] = map[string]int64{"Alice": 5}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertBalance, Party: "Bob", Expect: map[string]int64{"Alice": 5}},
		{Type: AssertTraceCount, Op: OpMove, Count: 3},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}
