package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// TraceSnapshot captures the trace and final balances of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Balances     map[string]map[string]int64
}

// toCanonicalMap converts the snapshot to the value types
// ledger.MarshalCanonical accepts. Empty optional fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	strs := func(in []string) []any {
		out := make([]any, len(in))
		for i, v := range in {
			out[i] = v
		}
		return out
	}

	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":     ev.Seq,
			"step":    ev.Step,
			"party":   ev.Party,
			"op":      ev.Op,
			"outcome": ev.Outcome,
		}
		if ev.Reason != "" {
			m["reason"] = ev.Reason
		}
		if len(ev.Signers) > 0 {
			m["signers"] = strs(ev.Signers)
		}
		if len(ev.Inputs) > 0 {
			m["inputs"] = strs(ev.Inputs)
		}
		if len(ev.Outputs) > 0 {
			m["outputs"] = strs(ev.Outputs)
		}
		trace[i] = m
	}

	balances := make(map[string]any, len(s.Balances))
	for party, sums := range s.Balances {
		b := make(map[string]any, len(sums))
		for issuer, qty := range sums {
			b[issuer] = qty
		}
		balances[party] = b
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"balances":      balances,
	}
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Balances:     result.Balances,
	}
	return ledger.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
