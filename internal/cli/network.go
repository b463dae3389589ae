package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerflow/internal/app"
	"github.com/roach88/ledgerflow/internal/config"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// withCluster loads the network configuration, opens every party's vault
// and runs fn. Responders are drained before the vaults are closed so that
// counterparties record what fn finalized.
func withCluster(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, c *app.Cluster) error) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load network config", err)
	}

	logger := newLogger(opts, cmd.ErrOrStderr())
	logger.Debug("opening ledger", "config", opts.Config, "data", opts.Data, "parties", len(cfg.Parties))

	cluster, err := app.Open(cfg, opts.Data, app.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		cluster.Wait()
		if closeErr := cluster.Close(); closeErr != nil {
			logger.Error("error closing ledger", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, cluster)
}

// TxSummary is the CLI view of a finalized transaction.
type TxSummary struct {
	ID      string   `json:"id"`
	Command string   `json:"command"`
	Notary  string   `json:"notary"`
	Signers []string `json:"signers"`
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

func summarize(stx *ledger.SignedTransaction) TxSummary {
	s := TxSummary{ID: stx.ID, Notary: string(stx.Tx.Notary)}
	if cmd, ok := stx.Tx.Command(); ok {
		s.Command = cmd.String()
	}
	for _, p := range stx.Tx.Signers {
		s.Signers = append(s.Signers, string(p))
	}
	for _, in := range stx.Tx.Inputs {
		s.Inputs = append(s.Inputs, in.Ref.String())
	}
	for i, out := range stx.Tx.Outputs {
		s.Outputs = append(s.Outputs, fmt.Sprintf("%s:%d %s", stx.ID, i, out))
	}
	return s
}

func (s TxSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", s.Command, s.ID)
	fmt.Fprintf(&b, "  notary:  %s\n", s.Notary)
	fmt.Fprintf(&b, "  signers: %s", strings.Join(s.Signers, ", "))
	for _, in := range s.Inputs {
		fmt.Fprintf(&b, "\n  - %s", in)
	}
	for _, out := range s.Outputs {
		fmt.Fprintf(&b, "\n  + %s", out)
	}
	return b.String()
}

// saveTransaction writes stx as JSON for later use with verify.
func saveTransaction(path string, stx *ledger.SignedTransaction) error {
	data, err := json.MarshalIndent(stx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	return nil
}

// parseRefs parses "txid:index" arguments.
func parseRefs(args []string) ([]ledger.StateRef, error) {
	refs := make([]ledger.StateRef, len(args))
	for i, a := range args {
		ref, err := ledger.ParseStateRef(a)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	return refs, nil
}
