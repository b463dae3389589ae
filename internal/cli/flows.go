package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerflow/internal/app"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/store"
)

// FlowsResult lists the flows of a party that never reached a terminal
// state.
type FlowsResult struct {
	Party string     `json:"party"`
	Flows []FlowView `json:"flows"`
}

// FlowView is one interrupted flow and its recorded transitions.
type FlowView struct {
	ID          string           `json:"id"`
	Checkpoints []CheckpointView `json:"checkpoints"`
}

// CheckpointView is one recorded state transition.
type CheckpointView struct {
	Seq    int64  `json:"seq"`
	Role   string `json:"role"`
	State  string `json:"state"`
	TxID   string `json:"tx_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (r FlowsResult) String() string {
	if len(r.Flows) == 0 {
		return fmt.Sprintf("%s has no incomplete flows", r.Party)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d incomplete flow(s)", r.Party, len(r.Flows))
	for _, fl := range r.Flows {
		fmt.Fprintf(&b, "\n%s", fl.ID)
		for _, cp := range fl.Checkpoints {
			fmt.Fprintf(&b, "\n  [%d] %s %s", cp.Seq, cp.Role, cp.State)
			if cp.TxID != "" {
				fmt.Fprintf(&b, " tx=%s", cp.TxID)
			}
			if cp.Detail != "" {
				fmt.Fprintf(&b, " (%s)", cp.Detail)
			}
		}
	}
	return b.String()
}

// NewFlowsCommand creates the flows command.
func NewFlowsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows <party>",
		Short: "List interrupted flows",
		Long: `List the flows of a party whose last checkpoint is neither Done nor
Failed, with every transition recorded for them.

Examples:
  ledgerflow flows Bob
  ledgerflow flows Bob --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlows(rootOpts, ledger.PartyID(args[0]), cmd)
		},
	}
	return cmd
}

func runFlows(opts *RootOptions, party ledger.PartyID, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	return withCluster(opts, cmd, func(ctx context.Context, c *app.Cluster) error {
		ids, err := c.IncompleteFlows(ctx, party)
		if err != nil {
			return usageError(f, err)
		}
		st, err := c.Store(party)
		if err != nil {
			return usageError(f, err)
		}

		sort.Strings(ids)
		result := FlowsResult{Party: string(party), Flows: make([]FlowView, 0, len(ids))}
		for _, id := range ids {
			cps, err := st.ReadCheckpoints(ctx, id)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read checkpoints", err)
			}
			result.Flows = append(result.Flows, FlowView{ID: id, Checkpoints: viewCheckpoints(cps)})
		}
		return f.Success(result)
	})
}

func viewCheckpoints(cps []store.Checkpoint) []CheckpointView {
	out := make([]CheckpointView, len(cps))
	for i, cp := range cps {
		out[i] = CheckpointView{Seq: cp.Seq, Role: cp.Role, State: cp.State, TxID: cp.TxID, Detail: cp.Detail}
	}
	return out
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
