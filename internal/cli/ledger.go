package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerflow/internal/app"
	"github.com/roach88/ledgerflow/internal/flow"
	"github.com/roach88/ledgerflow/internal/harness"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// FlowOptions holds flags shared by the commands that start a flow.
type FlowOptions struct {
	*RootOptions
	As   string // initiating party
	Save string // optional path for the finalized transaction
}

func (o *FlowOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.As, "as", "", "initiating party (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&o.Save, "save", "", "write the finalized transaction to this JSON file")
}

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue <holder:quantity>...",
		Short: "Issue new tokens",
		Long: `Issue new tokens with the --as party as sole issuer.

Each argument creates one record. The same holder may appear more than once.

Examples:
  ledgerflow issue --as Alice Bob:10
  ledgerflow issue --as Alice Bob:10 Carly:5 Bob:3 --save issue.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			held, err := parseHeld(args)
			if err != nil {
				return usageError(newFormatter(rootOpts, cmd), err)
			}
			return runFlow(opts, cmd, func(ctx context.Context, n *flow.Node) (*ledger.SignedTransaction, error) {
				return n.IssueMany(ctx, held)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// MoveOptions holds flags for the move command.
type MoveOptions struct {
	FlowOptions
	Outputs []string
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{FlowOptions: FlowOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "move <txid:index>...",
		Short: "Move tokens to new holders",
		Long: `Consume the given records held by the --as party and create the
--output records. Every holder of an input signs.

Examples:
  ledgerflow move --as Bob 3f9c...:0 --output Alice:Carly:10`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			refs, err := parseRefs(args)
			if err != nil {
				return usageError(f, err)
			}
			if len(opts.Outputs) == 0 {
				return usageError(f, fmt.Errorf("at least one --output is required"))
			}
			outputs := make([]ledger.TokenRecord, len(opts.Outputs))
			for i, o := range opts.Outputs {
				if outputs[i], err = ledger.ParseTokenRecord(o); err != nil {
					return usageError(f, err)
				}
			}
			return runFlow(&opts.FlowOptions, cmd, func(ctx context.Context, n *flow.Node) (*ledger.SignedTransaction, error) {
				return n.Move(ctx, refs, outputs)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringArrayVar(&opts.Outputs, "output", nil, "record to create, as issuer:holder:quantity (repeatable)")
	return cmd
}

// NewRedeemCommand creates the redeem command.
func NewRedeemCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "redeem <txid:index>...",
		Short: "Redeem tokens with their issuer",
		Long: `Consume the given records without creating any. Issuers and holders
of the inputs sign.

Examples:
  ledgerflow redeem --as Bob 3f9c...:0 3f9c...:1`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args)
			if err != nil {
				return usageError(newFormatter(rootOpts, cmd), err)
			}
			return runFlow(opts, cmd, func(ctx context.Context, n *flow.Node) (*ledger.SignedTransaction, error) {
				return n.Redeem(ctx, refs)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// RedeemByAmountOptions holds flags for the redeem-by-amount command.
type RedeemByAmountOptions struct {
	FlowOptions
	Issuer   string
	Quantity int64
}

// NewRedeemByAmountCommand creates the redeem-by-amount command.
func NewRedeemByAmountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RedeemByAmountOptions{FlowOptions: FlowOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "redeem-by-amount",
		Short: "Redeem an exact quantity of one issuer's tokens",
		Long: `Select records of --issuer held by the --as party worth at least
--quantity. When they overshoot, they are first moved to an exact record and
a change record, then the exact record is redeemed.

Examples:
  ledgerflow redeem-by-amount --as Bob --issuer Alice --quantity 25`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var move *ledger.SignedTransaction
			err := runFlow(&opts.FlowOptions, cmd, func(ctx context.Context, n *flow.Node) (*ledger.SignedTransaction, error) {
				var redeem *ledger.SignedTransaction
				var err error
				move, redeem, err = n.RedeemByAmount(ctx, ledger.PartyID(opts.Issuer), opts.Quantity)
				return redeem, err
			})
			if move != nil {
				newFormatter(rootOpts, cmd).VerboseLog("change moved in %s", move.ID)
			}
			return err
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Issuer, "issuer", "", "issuer of the tokens to redeem (required)")
	_ = cmd.MarkFlagRequired("issuer")
	cmd.Flags().Int64Var(&opts.Quantity, "quantity", 0, "quantity to redeem (required)")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

// runFlow starts a flow on the --as party's node and reports the finalized
// transaction.
func runFlow(opts *FlowOptions, cmd *cobra.Command, start func(ctx context.Context, n *flow.Node) (*ledger.SignedTransaction, error)) error {
	f := newFormatter(opts.RootOptions, cmd)

	return withCluster(opts.RootOptions, cmd, func(ctx context.Context, c *app.Cluster) error {
		n, err := c.Node(ledger.PartyID(opts.As))
		if err != nil {
			return usageError(f, err)
		}

		stx, err := start(ctx, n)
		if err != nil {
			reason := harness.ReasonOf(err)
			if outErr := f.Error(ErrCodeFlow, reason, err.Error()); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "flow failed", err)
		}
		f.VerboseLog("finalized %s with %d signatures", stx.ID, len(stx.Signatures))

		if opts.Save != "" {
			if err := saveTransaction(opts.Save, stx); err != nil {
				return WrapExitError(ExitCommandError, "failed to save transaction", err)
			}
		}
		return f.Success(summarize(stx))
	})
}

// parseHeld parses "holder:quantity" arguments.
func parseHeld(args []string) ([]flow.HeldQuantity, error) {
	held := make([]flow.HeldQuantity, len(args))
	for i, a := range args {
		holder, qty, ok := strings.Cut(a, ":")
		if !ok || holder == "" {
			return nil, fmt.Errorf("invalid output %q: want holder:quantity", a)
		}
		n, err := strconv.ParseInt(qty, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid output %q: %w", a, err)
		}
		held[i] = flow.HeldQuantity{Holder: ledger.PartyID(holder), Quantity: n}
	}
	return held, nil
}

func usageError(f *OutputFormatter, err error) error {
	if outErr := f.Error(ErrCodeUsage, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, "invalid arguments", err)
}
