package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a ledger scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Parties lists the network members. A notary named "Notary" is
	// always added.
	Parties []string `yaml:"parties"`

	// MaxQuantity configures MaxQuantityCheck per party.
	MaxQuantity map[string]int64 `yaml:"max_quantity,omitempty"`

	// SignatureTimeout bounds signature collection, as a Go duration.
	// Default: "5s".
	SignatureTimeout string `yaml:"signature_timeout,omitempty"`

	// Offline lists parties disconnected from the network before the
	// flow starts.
	Offline []string `yaml:"offline,omitempty"`

	// Setup contains steps that must succeed before the flow.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and balances.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation initiated by one party.
type Step struct {
	// ID names the step so later steps can use its outputs.
	ID string `yaml:"id"`

	// Party initiates the operation.
	Party string `yaml:"party"`

	// Op is one of issue, move, redeem, redeem_by_amount.
	Op string `yaml:"op"`

	// Inputs are "<step>:<index>" references (move, redeem).
	Inputs []string `yaml:"inputs,omitempty"`

	// Outputs are the records to create (issue, move).
	Outputs []Output `yaml:"outputs,omitempty"`

	// Issuer and Quantity select the amount to redeem (redeem_by_amount).
	Issuer   string `yaml:"issuer,omitempty"`
	Quantity int64  `yaml:"quantity,omitempty"`

	// Expect specifies the expected outcome. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Output is a record to create. Issuer defaults to the initiating party.
type Output struct {
	Issuer   string `yaml:"issuer,omitempty"`
	Holder   string `yaml:"holder"`
	Quantity int64  `yaml:"quantity"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Outcome is "ok" or "error".
	Outcome string `yaml:"outcome"`

	// Reason, if set, must equal the refusal reason of a failed step.
	Reason string `yaml:"reason,omitempty"`
}

// Assertion validates the trace or final balances.
type Assertion struct {
	// Type is one of balance, trace_contains, trace_count, trace_order.
	Type string `yaml:"type"`

	// Party selects whose balance to check (balance) or filters steps.
	Party string `yaml:"party,omitempty"`

	// Op filters steps (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Outcome filters steps (trace_contains, trace_count).
	Outcome string `yaml:"outcome,omitempty"`

	// Expect is the expected issuer sums (balance). Empty means nothing
	// held.
	Expect map[string]int64 `yaml:"expect,omitempty"`

	// Count is the expected number of matching steps (trace_count).
	Count int `yaml:"count,omitempty"`

	// Steps is the expected order of successful steps (trace_order).
	Steps []string `yaml:"steps,omitempty"`
}

// Operations.
const (
	OpIssue          = "issue"
	OpMove           = "move"
	OpRedeem         = "redeem"
	OpRedeemByAmount = "redeem_by_amount"
)

// Assertion type constants.
const (
	AssertBalance       = "balance"
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
)

// NotaryName is the notary every scenario network has.
const NotaryName = "Notary"

var (
	validStepID = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	validRef    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*):([0-9]+)$`)
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that steps
// only refer to parties and earlier steps that exist.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Parties) == 0 {
		return fmt.Errorf("parties list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, p := range s.Parties {
		if p == NotaryName {
			return fmt.Errorf("parties: %s is reserved for the notary", NotaryName)
		}
	}
	isParty := func(p string) bool { return slices.Contains(s.Parties, p) }
	for p := range s.MaxQuantity {
		if !isParty(p) {
			return fmt.Errorf("max_quantity: unknown party %q", p)
		}
	}
	for _, p := range s.Offline {
		if !isParty(p) {
			return fmt.Errorf("offline: unknown party %q", p)
		}
	}

	seen := make(map[string]bool)
	check := func(section string, i int, step Step) error {
		where := fmt.Sprintf("%s[%d]", section, i)
		if !validStepID.MatchString(step.ID) {
			return fmt.Errorf("%s: id %q must be an identifier", where, step.ID)
		}
		if seen[step.ID] {
			return fmt.Errorf("%s: duplicate id %q", where, step.ID)
		}
		if !isParty(step.Party) {
			return fmt.Errorf("%s: unknown party %q", where, step.Party)
		}
		if err := validateStep(step, isParty, seen); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		seen[step.ID] = true
		return nil
	}
	for i, step := range s.Setup {
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
		if err := check("setup", i, step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := check("flow", i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, isParty, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, isParty func(string) bool, seen map[string]bool) error {
	switch step.Op {
	case OpIssue:
		if len(step.Outputs) == 0 {
			return fmt.Errorf("issue requires outputs")
		}
	case OpMove:
		if len(step.Inputs) == 0 || len(step.Outputs) == 0 {
			return fmt.Errorf("move requires inputs and outputs")
		}
	case OpRedeem:
		if len(step.Inputs) == 0 {
			return fmt.Errorf("redeem requires inputs")
		}
	case OpRedeemByAmount:
		if !isParty(step.Issuer) {
			return fmt.Errorf("redeem_by_amount: unknown issuer %q", step.Issuer)
		}
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	for _, ref := range step.Inputs {
		m := validRef.FindStringSubmatch(ref)
		if m == nil {
			return fmt.Errorf("input %q: want <step>:<index>", ref)
		}
		if !seen[stepOf(m[1])] {
			return fmt.Errorf("input %q: no earlier step %q", ref, m[1])
		}
	}
	for _, out := range step.Outputs {
		if !isParty(out.Holder) {
			return fmt.Errorf("output: unknown holder %q", out.Holder)
		}
		if out.Issuer != "" && !isParty(out.Issuer) {
			return fmt.Errorf("output: unknown issuer %q", out.Issuer)
		}
	}
	if step.Expect != nil && step.Expect.Outcome != OutcomeOK && step.Expect.Outcome != OutcomeError {
		return fmt.Errorf("expect: outcome must be %q or %q", OutcomeOK, OutcomeError)
	}
	return nil
}

// stepOf strips the ".move" suffix used for the split of redeem_by_amount.
func stepOf(ref string) string {
	step, _, _ := strings.Cut(ref, ".")
	return step
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, isParty func(string) bool, steps map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBalance:
		if !isParty(a.Party) {
			return fmt.Errorf("assertions[%d]: balance requires a known party, got %q", index, a.Party)
		}
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Steps) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order needs at least two steps", index)
		}
		for _, s := range a.Steps {
			if !steps[s] {
				return fmt.Errorf("assertions[%d]: unknown step %q", index, s)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
