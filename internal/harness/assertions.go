package harness

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s by %s: %s", ev.Seq, ev.Step, ev.Op, ev.Party, ev.Outcome)
			if ev.Reason != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Reason)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// matches reports whether ev satisfies the op, party and outcome filters
// of a. Empty filters match anything.
func matches(ev TraceEvent, a Assertion) bool {
	return ev.Op == a.Op &&
		(a.Party == "" || ev.Party == a.Party) &&
		(a.Outcome == "" || ev.Outcome == a.Outcome)
}

func describe(a Assertion) string {
	s := "op " + a.Op
	if a.Party != "" {
		s += " by " + a.Party
	}
	if a.Outcome != "" {
		s += " with outcome " + a.Outcome
	}
	return s
}

// assertTraceContains checks that some step matches.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly a.Count steps match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s exactly %d times", describe(a), a.Count),
			Actual:   fmt.Sprintf("found %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the named steps succeeded in order.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int64)
	for _, ev := range trace {
		if ev.Outcome == OutcomeOK {
			positions[ev.Step] = ev.Seq
		}
	}

	for _, step := range a.Steps {
		if positions[step] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all steps succeeded: %v", a.Steps),
				Actual:   fmt.Sprintf("step %s did not succeed", step),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Steps); i++ {
		prev, curr := a.Steps[i-1], a.Steps[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order: %v", a.Steps),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertBalance checks a party's final issuer sums exactly.
func assertBalance(balances map[string]map[string]int64, a Assertion) error {
	got := balances[a.Party]
	want := a.Expect
	if len(got) == 0 && len(want) == 0 {
		return nil
	}
	if !maps.Equal(got, want) {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %s", a.Party, formatBalance(want)),
			Actual:   formatBalance(got),
		}
	}
	return nil
}

func formatBalance(b map[string]int64) string {
	if len(b) == 0 {
		return "nothing"
	}
	issuers := make([]string, 0, len(b))
	for issuer := range b {
		issuers = append(issuers, issuer)
	}
	sort.Strings(issuers)
	parts := make([]string, len(issuers))
	for i, issuer := range issuers {
		parts[i] = fmt.Sprintf("%s=%d", issuer, b[issuer])
	}
	return strings.Join(parts, ", ")
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertBalance:
			err = assertBalance(result.Balances, a)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
