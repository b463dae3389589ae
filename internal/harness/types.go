package harness

// TraceEvent records one step of a scenario in step-relative terms.
type TraceEvent struct {
	Seq     int64    `json:"seq"`
	Step    string   `json:"step"`
	Party   string   `json:"party"`
	Op      string   `json:"op"`
	Outcome string   `json:"outcome"` // "ok" or "error"
	Reason  string   `json:"reason,omitempty"`
	Signers []string `json:"signers,omitempty"`
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

// Step outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Balances holds each party's final issuer sums.
	Balances map[string]map[string]int64 `json:"balances,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Balances: make(map[string]map[string]int64),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev with the next sequence number.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
