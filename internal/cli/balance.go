package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerflow/internal/app"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// BalanceResult is a party's vault view.
type BalanceResult struct {
	Party    string           `json:"party"`
	Balance  map[string]int64 `json:"balance"`
	Holdings []HoldingView    `json:"holdings"`
}

// HoldingView is one unconsumed record.
type HoldingView struct {
	Ref      string `json:"ref"`
	Issuer   string `json:"issuer"`
	Quantity int64  `json:"quantity"`
}

func (r BalanceResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s holds", r.Party)
	if len(r.Holdings) == 0 {
		b.WriteString(" nothing")
		return b.String()
	}
	for _, h := range r.Holdings {
		fmt.Fprintf(&b, "\n  %s  %s %d", h.Ref, h.Issuer, h.Quantity)
	}
	b.WriteString("\ntotals:")
	for _, issuer := range sortedKeys(r.Balance) {
		fmt.Fprintf(&b, "\n  %s %d", issuer, r.Balance[issuer])
	}
	return b.String()
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <party>",
		Short: "Show the tokens a party holds",
		Long: `List the unconsumed records a party holds according to its own vault,
with the total per issuer.

Examples:
  ledgerflow balance Bob
  ledgerflow balance Bob --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(rootOpts, ledger.PartyID(args[0]), cmd)
		},
	}
	return cmd
}

func runBalance(opts *RootOptions, party ledger.PartyID, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	return withCluster(opts, cmd, func(ctx context.Context, c *app.Cluster) error {
		sums, err := c.Balance(ctx, party)
		if err != nil {
			return usageError(f, err)
		}
		held, err := c.Holdings(ctx, party)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read vault", err)
		}

		result := BalanceResult{
			Party:    string(party),
			Balance:  make(map[string]int64, len(sums)),
			Holdings: make([]HoldingView, 0, len(held)),
		}
		for issuer, qty := range sums {
			result.Balance[string(issuer)] = qty
		}
		for _, s := range held {
			result.Holdings = append(result.Holdings, HoldingView{
				Ref:      s.Ref.String(),
				Issuer:   string(s.Record.Issuer()),
				Quantity: s.Record.Quantity(),
			})
		}
		return f.Success(result)
	})
}
