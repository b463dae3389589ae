package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/ledgerflow/internal/app"
	"github.com/roach88/ledgerflow/internal/config"
	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/flow"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/notary"
	"github.com/roach88/ledgerflow/internal/store"
)

// DefaultSignatureTimeout is used when a scenario sets none.
const DefaultSignatureTimeout = 5 * time.Second

// Harness executes the steps of one scenario.
type Harness struct {
	cluster *app.Cluster

	// outputs maps a step name to the transaction it produced.
	outputs map[string]*ledger.SignedTransaction

	// names maps a transaction id back to its step name.
	names map[string]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh stores in a temporary directory.
// Execution flow:
//  1. Start a network with the scenario's parties and a notary
//  2. Execute setup steps, which must all succeed
//  3. Disconnect offline parties
//  4. Execute flow steps, checking each expect clause
//  5. Collect balances and evaluate assertions
//
// An error is returned only when the scenario cannot run at all; failed
// expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := networkConfig(scenario)
	if err != nil {
		return nil, err
	}

	dataDir, err := os.MkdirTemp("", "ledgerflow-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	defer os.RemoveAll(dataDir)

	cluster, err := app.Open(cfg, dataDir,
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithNodeOptions(func(p ledger.PartyID) []flow.Option {
			return []flow.Option{flow.WithIDGenerator(flow.NewSequenceGenerator(string(p)))}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start network: %w", err)
	}
	defer cluster.Close()

	h := &Harness{
		cluster: cluster,
		outputs: make(map[string]*ledger.SignedTransaction),
		names:   make(map[string]string),
	}
	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Setup {
		if _, err := h.execute(ctx, step, result); err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.ID, err)
		}
	}

	for _, p := range scenario.Offline {
		cluster.Network().Disconnect(ledger.PartyID(p))
	}

	for i, step := range scenario.Flow {
		ev, err := h.execute(ctx, step, result)
		checkExpect(result, fmt.Sprintf("flow[%d] %s", i, step.ID), step.Expect, ev, err)
	}

	for _, p := range scenario.Parties {
		sum, err := cluster.Balance(ctx, ledger.PartyID(p))
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", p, err)
		}
		bal := make(map[string]int64, len(sum))
		for issuer, qty := range sum {
			bal[string(issuer)] = qty
		}
		result.Balances[p] = bal
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// networkConfig derives a network definition from the scenario. Seeds are
// fixed so transaction ids are stable across runs.
func networkConfig(s *Scenario) (*config.Network, error) {
	timeout := DefaultSignatureTimeout
	if s.SignatureTimeout != "" {
		d, err := time.ParseDuration(s.SignatureTimeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid signature_timeout %q", s.SignatureTimeout)
		}
		timeout = d
	}

	cfg := &config.Network{
		Notary:           NotaryName,
		SignatureTimeout: timeout,
		PageSize:         store.DefaultPageSize,
		InboundBurst:     1,
	}
	for _, name := range append([]string{NotaryName}, s.Parties...) {
		cfg.Parties = append(cfg.Parties, config.Party{
			Name:        ledger.PartyID(name),
			Seed:        "scenario/" + strings.ToLower(name),
			MaxQuantity: s.MaxQuantity[name],
		})
	}
	sort.Slice(cfg.Parties, func(i, j int) bool { return cfg.Parties[i].Name < cfg.Parties[j].Name })
	return cfg, nil
}

// execute runs one step and adds its trace events. The returned event is
// the step's own; the error is the operation's.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) (TraceEvent, error) {
	// Responders of the previous step record asynchronously.
	defer h.cluster.Wait()

	ev := TraceEvent{Step: step.ID, Party: step.Party, Op: step.Op}
	node, err := h.cluster.Node(ledger.PartyID(step.Party))
	if err != nil {
		return h.fail(result, ev, err)
	}

	var final *ledger.SignedTransaction
	switch step.Op {
	case OpIssue:
		held := make([]flow.HeldQuantity, len(step.Outputs))
		for i, out := range step.Outputs {
			if out.Issuer != "" && out.Issuer != step.Party {
				return h.fail(result, ev, &flow.PreconditionError{Reason: flow.MsgMustBeSoleIssuer})
			}
			held[i] = flow.HeldQuantity{Holder: ledger.PartyID(out.Holder), Quantity: out.Quantity}
		}
		final, err = node.IssueMany(ctx, held)

	case OpMove:
		inputs, rerr := h.resolve(step.Inputs)
		if rerr != nil {
			return h.fail(result, ev, rerr)
		}
		outputs, rerr := records(step.Party, step.Outputs)
		if rerr != nil {
			return h.fail(result, ev, rerr)
		}
		final, err = node.MoveStates(ctx, inputs, outputs)

	case OpRedeem:
		inputs, rerr := h.resolve(step.Inputs)
		if rerr != nil {
			return h.fail(result, ev, rerr)
		}
		final, err = node.RedeemStates(ctx, inputs)

	case OpRedeemByAmount:
		var move *ledger.SignedTransaction
		move, final, err = node.RedeemByAmount(ctx, ledger.PartyID(step.Issuer), step.Quantity)
		if move != nil {
			h.succeed(result, TraceEvent{Step: step.ID + ".move", Party: step.Party, Op: OpMove}, move)
		}

	default:
		return h.fail(result, ev, fmt.Errorf("unknown op %q", step.Op))
	}

	if err != nil {
		return h.fail(result, ev, err)
	}
	return h.succeed(result, ev, final), nil
}

func (h *Harness) succeed(result *Result, ev TraceEvent, final *ledger.SignedTransaction) TraceEvent {
	h.outputs[ev.Step] = final
	h.names[final.ID] = ev.Step

	ev.Outcome = OutcomeOK
	for _, p := range final.Tx.Signers {
		ev.Signers = append(ev.Signers, string(p))
	}
	for _, in := range final.Tx.Inputs {
		ev.Inputs = append(ev.Inputs, h.refName(in.Ref))
	}
	for _, out := range final.Tx.Outputs {
		ev.Outputs = append(ev.Outputs, out.String())
	}
	result.AddTrace(ev)
	return result.Trace[len(result.Trace)-1]
}

func (h *Harness) fail(result *Result, ev TraceEvent, err error) (TraceEvent, error) {
	ev.Outcome = OutcomeError
	ev.Reason = ReasonOf(err)
	result.AddTrace(ev)
	return result.Trace[len(result.Trace)-1], err
}

// resolve turns "<step>:<index>" references into the records they name.
func (h *Harness) resolve(refs []string) ([]ledger.StateAndRef, error) {
	out := make([]ledger.StateAndRef, 0, len(refs))
	for _, ref := range refs {
		m := validRef.FindStringSubmatch(ref)
		if m == nil {
			return nil, fmt.Errorf("input %q: want <step>:<index>", ref)
		}
		stx, ok := h.outputs[m[1]]
		if !ok {
			return nil, fmt.Errorf("input %q: step %s produced no transaction", ref, m[1])
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", ref, err)
		}
		states := stx.OutRefs()
		if idx >= len(states) {
			return nil, fmt.Errorf("input %q: step %s has %d outputs", ref, m[1], len(states))
		}
		out = append(out, states[idx])
	}
	return out, nil
}

func (h *Harness) refName(ref ledger.StateRef) string {
	if name, ok := h.names[ref.TxID]; ok {
		return fmt.Sprintf("%s:%d", name, ref.Index)
	}
	return ref.String()
}

func records(party string, outputs []Output) ([]ledger.TokenRecord, error) {
	out := make([]ledger.TokenRecord, len(outputs))
	for i, o := range outputs {
		issuer := o.Issuer
		if issuer == "" {
			issuer = party
		}
		rec, err := ledger.NewTokenRecord(ledger.PartyID(issuer), ledger.PartyID(o.Holder), o.Quantity)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// ReasonOf returns the stable, id-free reason a step failed: the rule or
// refusal message where there is one.
func ReasonOf(err error) string {
	if reason := flow.RejectionReason(err); reason != "" {
		return reason
	}
	var pe *flow.PreconditionError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	var re *contract.RejectionError
	if errors.As(err, &re) {
		return re.Message
	}
	switch {
	case notary.IsConflict(err):
		return "input already consumed"
	case errors.Is(err, flow.ErrTimeout):
		return "timed out collecting signatures"
	case errors.Is(err, flow.ErrNotEnoughStates):
		return flow.MsgNotEnoughStates
	case errors.Is(err, ledger.ErrNonPositiveQuantity):
		return ledger.ErrNonPositiveQuantity.Error()
	}
	return err.Error()
}

// checkExpect compares a step's outcome with its expect clause. A step
// without one must succeed.
func checkExpect(result *Result, where string, expect *Expect, ev TraceEvent, err error) {
	want := OutcomeOK
	if expect != nil {
		want = expect.Outcome
	}
	if ev.Outcome != want {
		if err != nil {
			result.AddError(fmt.Sprintf("%s: expected %s, got error: %v", where, want, err))
		} else {
			result.AddError(fmt.Sprintf("%s: expected %s, got ok", where, want))
		}
		return
	}
	if expect != nil && expect.Reason != "" && ev.Reason != expect.Reason {
		result.AddError(fmt.Sprintf("%s: expected reason %q, got %q", where, expect.Reason, ev.Reason))
	}
}
