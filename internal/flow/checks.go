package flow

import (
	"errors"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// AcceptanceCheck decides whether self is willing to sign tx. A non-nil
// error refuses the proposal; its text is sent to the initiator.
type AcceptanceCheck func(self ledger.PartyID, tx ledger.Transaction) error

// RelevanceCheck refuses transactions that do not concern self: for Move,
// self must hold an input; for Redeem, self must issue or hold an input; for
// Issue, self must issue an output.
func RelevanceCheck(self ledger.PartyID, tx ledger.Transaction) error {
	cmd, _ := tx.Command()
	relevant := false
	switch cmd {
	case ledger.CommandIssue:
		for _, out := range tx.Outputs {
			relevant = relevant || out.Issuer() == self
		}
	case ledger.CommandMove:
		for _, in := range tx.Inputs {
			relevant = relevant || in.Record.Holder() == self
		}
	case ledger.CommandRedeem:
		for _, in := range tx.Inputs {
			relevant = relevant || in.Record.Issuer() == self || in.Record.Holder() == self
		}
	}
	if !relevant {
		return errors.New(MsgMustBeRelevant)
	}
	return nil
}

// MaxQuantityCheck refuses to give up any input held by self whose
// quantity exceeds limit.
func MaxQuantityCheck(limit int64) AcceptanceCheck {
	return func(self ledger.PartyID, tx ledger.Transaction) error {
		for _, in := range tx.Inputs {
			if in.Record.Holder() == self && in.Record.Quantity() > limit {
				return errors.New(MsgQuantityTooHigh)
			}
		}
		return nil
	}
}
