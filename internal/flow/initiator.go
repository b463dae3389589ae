package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/session"
)

// initiate runs the initiating side of the protocol for tx. tx.Signers is
// derived from the command and must be left empty by callers.
func (n *Node) initiate(ctx context.Context, tx ledger.Transaction) (*ledger.SignedTransaction, error) {
	cmd, _ := tx.Command()
	t := &tracker{
		observer: n.observer,
		clock:    NewClock(),
		flowID:   n.ids.Generate(),
		role:     RoleInitiator,
		party:    n.Party(),
	}
	logger := n.logger.With("flow", t.flowID, "command", cmd.String())
	mFlowsStarted.WithLabelValues(RoleInitiator, cmd.String()).Inc()

	t.enter(ctx, Building, nil)
	stx, err := n.build(tx)
	if err != nil {
		logger.Info("transaction refused locally", "error", err)
		t.enter(ctx, InitiatorFailed, err)
		return nil, err
	}
	t.txID = stx.ID
	logger = logger.With("tx", stx.ID)

	t.enter(ctx, SigningSelf, nil)
	sig, err := n.Signer.Sign(ledger.SigningPayload(stx.ID))
	if err != nil {
		err = fmt.Errorf("sign %s: %w", stx.ID, err)
		t.enter(ctx, InitiatorFailed, err)
		return nil, err
	}
	stx.AddSignature(n.Party(), sig)

	t.enter(ctx, CollectingSignatures, nil)
	signers, all, err := n.openSessions(ctx, stx)
	if err != nil {
		return nil, n.abort(ctx, t, all, err)
	}
	if err := n.collectSignatures(ctx, stx, signers); err != nil {
		logger.Info("signature collection failed", "error", err)
		return nil, n.abort(ctx, t, all, err)
	}

	t.enter(ctx, Verifying, nil)
	if err := contract.VerifySignatures(stx, n.Keys); err != nil {
		return nil, n.abort(ctx, t, all, err)
	}
	if err := contract.VerifyTransaction(stx.Tx, n.Keys); err != nil {
		return nil, n.abort(ctx, t, all, err)
	}

	t.enter(ctx, Finalizing, nil)
	final, err := n.Notary.Finalize(ctx, stx, all)
	if err != nil {
		logger.Info("finalization failed", "error", err)
		return nil, n.abort(ctx, t, all, err)
	}
	if _, err := n.Records.RecordTransaction(ctx, final); err != nil {
		// Finalized but not recorded locally; counterparties already have it.
		err = fmt.Errorf("record %s: %w", final.ID, err)
		closeAll(all)
		t.enter(ctx, InitiatorFailed, err)
		return nil, err
	}

	closeAll(all)
	t.enter(ctx, InitiatorDone, nil)
	logger.Info("transaction finalized", "signers", len(final.Tx.Signers), "sessions", len(all))
	return final, nil
}

// build checks that the local party may initiate tx, fills in the signers
// and notary, and verifies the contract locally. It touches no session.
func (n *Node) build(tx ledger.Transaction) (*ledger.SignedTransaction, error) {
	self := n.Party()
	cmd, ok := tx.Command()
	if !ok {
		return nil, contract.Verify(tx.InputRecords(), tx.Outputs, tx.Commands, nil, n.Keys)
	}

	if len(tx.Inputs) > 0 {
		notary, err := singleNotary(tx.Inputs)
		if err != nil {
			return nil, err
		}
		tx.Notary = notary
	}

	inputs := tx.InputRecords()
	switch cmd {
	case ledger.CommandIssue:
		for _, out := range tx.Outputs {
			if out.Issuer() != self {
				return nil, &PreconditionError{Reason: MsgMustBeSoleIssuer}
			}
		}
	case ledger.CommandMove:
		if !slices.ContainsFunc(inputs, func(r ledger.TokenRecord) bool { return r.Holder() == self }) {
			return nil, &PreconditionError{Reason: MsgMustBeHolder}
		}
	case ledger.CommandRedeem:
		if !slices.ContainsFunc(inputs, func(r ledger.TokenRecord) bool { return r.Issuer() == self || r.Holder() == self }) {
			return nil, &PreconditionError{Reason: MsgMustBeIssuerOrHolder}
		}
	}

	tx.Signers = contract.RequiredSigners(cmd, inputs, tx.Outputs)
	if err := contract.VerifyTransaction(tx, n.Keys); err != nil {
		return nil, err
	}
	return ledger.NewSignedTransaction(tx)
}

func singleNotary(inputs []ledger.StateAndRef) (ledger.PartyID, error) {
	notary := inputs[0].Notary
	for _, in := range inputs[1:] {
		if in.Notary != notary {
			return "", &PreconditionError{Reason: MsgSingleNotary}
		}
	}
	return notary, nil
}

// participants returns the new holders that are neither signers nor the
// local party. They receive the finalized transaction without signing.
func (n *Node) participants(stx *ledger.SignedTransaction) []ledger.PartyID {
	var out []ledger.PartyID
	for _, rec := range stx.Tx.Outputs {
		h := rec.Holder()
		if h == n.Party() || slices.Contains(stx.Tx.Signers, h) || slices.Contains(out, h) {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// openSessions opens a session to every other signer, sends its role and
// the proposal, then opens a session to every participant. all holds every
// session opened so far, even on error.
func (n *Node) openSessions(ctx context.Context, stx *ledger.SignedTransaction) (signers, all []session.Session, err error) {
	for _, p := range stx.Tx.Signers {
		if p == n.Party() {
			continue
		}
		s, err := n.Sessions.Open(ctx, p)
		if err != nil {
			return signers, all, &ProtocolError{Counterparty: p, Reason: "cannot open session", Err: err}
		}
		all = append(all, s)
		signers = append(signers, s)
		if err := s.Send(ctx, session.RoleMessage(ledger.RoleSigner)); err != nil {
			return signers, all, &ProtocolError{Counterparty: p, Reason: "cannot send role", Err: err}
		}
		if err := s.Send(ctx, session.ProposalMessage(stx)); err != nil {
			return signers, all, &ProtocolError{Counterparty: p, Reason: "cannot send proposal", Err: err}
		}
	}

	for _, p := range n.participants(stx) {
		s, err := n.Sessions.Open(ctx, p)
		if err != nil {
			return signers, all, &ProtocolError{Counterparty: p, Reason: "cannot open session", Err: err}
		}
		all = append(all, s)
		if err := s.Send(ctx, session.RoleMessage(ledger.RoleParticipant)); err != nil {
			return signers, all, &ProtocolError{Counterparty: p, Reason: "cannot send role", Err: err}
		}
	}
	return signers, all, nil
}

// abort tells every counterparty the flow is over, closes the sessions and
// records the failure. Delivery is best effort.
func (n *Node) abort(ctx context.Context, t *tracker, sessions []session.Session, cause error) error {
	reason := cause.Error()
	sendCtx := context.WithoutCancel(ctx)
	for _, s := range sessions {
		if err := s.Send(sendCtx, session.AbortMessage(reason)); err != nil && !errors.Is(err, session.ErrClosed) {
			n.logger.Debug("abort not delivered", "flow", t.flowID, "to", s.Counterparty(), "error", err)
		}
	}
	closeAll(sessions)
	t.enter(ctx, InitiatorFailed, cause)
	return cause
}

func closeAll(sessions []session.Session) {
	for _, s := range sessions {
		_ = s.Close()
	}
}
