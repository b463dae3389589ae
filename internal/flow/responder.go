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

// HandleSession runs the responding side of the protocol on s. It is a
// session.Acceptor.
func (n *Node) HandleSession(ctx context.Context, s session.Session) {
	_, _ = n.Respond(ctx, s)
}

// Respond runs the responding side of the protocol on s and returns the
// finalized transaction it recorded.
func (n *Node) Respond(ctx context.Context, s session.Session) (*ledger.SignedTransaction, error) {
	mActiveResponders.Inc()
	defer mActiveResponders.Dec()

	t := &tracker{
		observer:     n.observer,
		clock:        NewClock(),
		flowID:       n.ids.Generate(),
		role:         RoleResponder,
		party:        n.Party(),
		counterparty: s.Counterparty(),
	}
	logger := n.logger.With("flow", t.flowID, "initiator", string(s.Counterparty()))

	fail := func(err error) (*ledger.SignedTransaction, error) {
		logger.Info("responder failed", "tx", t.txID, "error", err)
		t.enter(ctx, ResponderFailed, err)
		return nil, err
	}

	t.enter(ctx, AwaitingRole, nil)
	msg, err := s.Receive(ctx)
	if err != nil {
		return fail(fmt.Errorf("await role: %w", err))
	}
	switch {
	case msg.Kind == session.KindAbort:
		return fail(fmt.Errorf("%w: %s", ErrAborted, msg.Reason))
	case msg.Kind != session.KindRole:
		return fail(&ProtocolError{Counterparty: s.Counterparty(), Reason: "expected role, got " + msg.Kind.String()})
	}
	mFlowsStarted.WithLabelValues(RoleResponder, msg.Role.String()).Inc()

	var proposal *ledger.SignedTransaction
	var signature []byte
	if msg.Role == ledger.RoleSigner {
		t.enter(ctx, Signing, nil)
		proposal, signature, err = n.sign(ctx, t, s)
		if err != nil {
			return fail(err)
		}
		logger.Debug("proposal signed", "tx", proposal.ID)
	} else {
		t.enter(ctx, Idle, nil)
	}

	t.enter(ctx, AwaitingFinalization, nil)
	for {
		msg, err := s.Receive(ctx)
		if err != nil {
			return fail(fmt.Errorf("await finalization: %w", err))
		}

		switch msg.Kind {
		case session.KindProposal:
			// Redelivery: answer with the signature already produced.
			if proposal == nil || msg.Tx == nil || msg.Tx.ID != proposal.ID {
				return fail(&ProtocolError{Counterparty: s.Counterparty(), Reason: "unexpected proposal"})
			}
			if err := s.Send(ctx, session.SignatureMessage(signature)); err != nil {
				return fail(fmt.Errorf("resend signature: %w", err))
			}
		case session.KindAbort:
			return fail(fmt.Errorf("%w: %s", ErrAborted, msg.Reason))
		case session.KindFinalized:
			final := msg.Tx
			if err := n.checkFinalized(final, proposal); err != nil {
				return fail(err)
			}
			t.txID = final.ID
			if _, err := n.Records.RecordTransaction(ctx, final); err != nil {
				return fail(fmt.Errorf("record %s: %w", final.ID, err))
			}
			t.enter(ctx, ResponderDone, nil)
			logger.Info("transaction recorded", "tx", final.ID)
			return final, nil
		default:
			return fail(&ProtocolError{Counterparty: s.Counterparty(), Reason: "unexpected " + msg.Kind.String() + " message"})
		}
	}
}

// sign receives a proposal, decides whether to sign it and replies with a
// signature or a rejection.
func (n *Node) sign(ctx context.Context, t *tracker, s session.Session) (*ledger.SignedTransaction, []byte, error) {
	msg, err := s.Receive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("await proposal: %w", err)
	}
	switch {
	case msg.Kind == session.KindAbort:
		return nil, nil, fmt.Errorf("%w: %s", ErrAborted, msg.Reason)
	case msg.Kind != session.KindProposal || msg.Tx == nil:
		return nil, nil, &ProtocolError{Counterparty: s.Counterparty(), Reason: "expected proposal, got " + msg.Kind.String()}
	}

	stx := msg.Tx
	t.txID = stx.ID
	if reason := n.review(s.Counterparty(), stx); reason != "" {
		if err := s.Send(ctx, session.RejectionMessage(reason)); err != nil {
			n.logger.Debug("rejection not delivered", "flow", t.flowID, "error", err)
		}
		return nil, nil, &PreconditionError{Reason: reason}
	}

	sig, err := n.Signer.Sign(ledger.SigningPayload(stx.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("sign %s: %w", stx.ID, err)
	}
	stored, inserted, err := n.Signatures.WriteSignature(ctx, stx.ID, n.Party(), sig)
	if err != nil {
		return nil, nil, fmt.Errorf("log signature %s: %w", stx.ID, err)
	}
	if !inserted {
		n.logger.Info("proposal already signed, returning stored signature", "flow", t.flowID, "tx", stx.ID)
	}
	if err := s.Send(ctx, session.SignatureMessage(stored)); err != nil {
		return nil, nil, fmt.Errorf("send signature: %w", err)
	}
	return stx, stored, nil
}

// review returns the reason for refusing stx, or "" to sign it.
func (n *Node) review(initiator ledger.PartyID, stx *ledger.SignedTransaction) string {
	self := n.Party()
	if err := contract.VerifySignatures(stx, n.Keys, stx.Tx.Signers...); err != nil {
		return rejectionText(err)
	}
	if _, ok := stx.Signatures[initiator]; !ok {
		return MsgInitiatorMustSign
	}
	if !slices.Contains(stx.Tx.Signers, self) {
		return MsgMustBeSigner
	}
	if err := contract.VerifyTransaction(stx.Tx, n.Keys); err != nil {
		return rejectionText(err)
	}
	for _, check := range n.checks {
		if err := check(self, stx.Tx); err != nil {
			return err.Error()
		}
	}
	return ""
}

// checkFinalized verifies a transaction delivered by the notary. proposal
// is nil for participants.
func (n *Node) checkFinalized(final, proposal *ledger.SignedTransaction) error {
	if final == nil {
		return errors.New(MsgFinalizedDoesNotMatch)
	}
	if proposal != nil && final.ID != proposal.ID {
		return fmt.Errorf("%s: got %s, signed %s", MsgFinalizedDoesNotMatch, final.ID, proposal.ID)
	}
	if err := contract.VerifySignatures(final, n.Keys); err != nil {
		return fmt.Errorf("finalized %s: %w", final.ID, err)
	}
	if _, ok := final.Signatures[final.Tx.Notary]; !ok {
		return fmt.Errorf("finalized %s: missing notary signature", final.ID)
	}
	return nil
}

// rejectionText returns the rule message of a contract rejection, or the
// error text otherwise.
func rejectionText(err error) string {
	var re *contract.RejectionError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
