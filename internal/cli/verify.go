package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerflow/internal/app"
	"github.com/roach88/ledgerflow/internal/config"
	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	AllowMissing []string
}

// VerifyResult is the verdict on a transaction file.
type VerifyResult struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Valid   bool   `json:"valid"`
}

func (r VerifyResult) String() string {
	return fmt.Sprintf("✓ %s %s is valid", r.Command, r.ID)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <tx.json>",
		Short: "Verify a signed transaction",
		Long: `Check a signed transaction against the token contract and the keys of
the network configuration.

The transaction id must match its content, every proposed signer must have
signed with its configured key, and the contract rules for its command must
hold. Files are written by the --save flag of issue, move and redeem.

Exit codes:
  0 - Transaction is valid
  1 - Transaction was rejected
  2 - Command error (unreadable file, bad config, etc.)

Examples:
  ledgerflow verify --config ./network move.json
  ledgerflow verify --config ./network proposal.json --allow-missing Bob`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.AllowMissing, "allow-missing", nil, "signers whose signatures may be absent")
	return cmd
}

func runVerify(opts *VerifyOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transaction", err)
	}
	var stx ledger.SignedTransaction
	if err := json.Unmarshal(data, &stx); err != nil {
		return WrapExitError(ExitCommandError, "failed to parse transaction", err)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load network config", err)
	}
	_, dir := app.Keys(cfg)

	allowed := make([]ledger.PartyID, len(opts.AllowMissing))
	for i, p := range opts.AllowMissing {
		allowed[i] = ledger.PartyID(p)
	}

	f.VerboseLog("Verifying %s against %d parties", stx.ID, len(cfg.Parties))
	if err := contract.VerifySignatures(&stx, dir, allowed...); err != nil {
		return reportRejection(f, err)
	}
	if err := contract.VerifyTransaction(stx.Tx, dir); err != nil {
		return reportRejection(f, err)
	}

	result := VerifyResult{ID: stx.ID, Valid: true}
	if c, ok := stx.Tx.Command(); ok {
		result.Command = c.String()
	}
	return f.Success(result)
}

func reportRejection(f *OutputFormatter, err error) error {
	var re *contract.RejectionError
	if !errors.As(err, &re) {
		return WrapExitError(ExitCommandError, "verification failed", err)
	}
	details := map[string]any{"rule": string(re.Code)}
	for k, v := range re.Details {
		details[k] = v
	}
	if outErr := f.Error(ErrCodeRejected, re.Message, details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "transaction rejected", err)
}
