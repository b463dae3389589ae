package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/session"
)

// moveProposal is a Move of Bob's and Carly's records to Dan, signed by
// the given parties.
func moveProposal(t *testing.T, tn *testNetwork, by ...ledger.PartyID) *ledger.SignedTransaction {
	t.Helper()
	return tn.sign(t, ledger.Transaction{
		Inputs: []ledger.StateAndRef{
			{Record: ledger.MustTokenRecord(alice, bob, 5), Ref: ledger.StateRef{TxID: "t1", Index: 0}, Notary: notaryParty},
			{Record: ledger.MustTokenRecord(alice, carly, 7), Ref: ledger.StateRef{TxID: "t1", Index: 1}, Notary: notaryParty},
		},
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord(alice, dan, 12)},
		Commands: []ledger.Command{ledger.CommandMove},
		Signers:  []ledger.PartyID{bob, carly},
		Notary:   notaryParty,
	}, by...)
}

func (tn *testNetwork) notarise(t *testing.T, stx *ledger.SignedTransaction) *ledger.SignedTransaction {
	t.Helper()
	final := stx.Clone()
	sig, err := tn.pairs[notaryParty].Sign(ledger.SigningPayload(final.ID))
	require.NoError(t, err)
	final.AddSignature(notaryParty, sig)
	return final
}

func TestRespond_SignsAndRecords(t *testing.T) {
	tn := newTestNetwork(t, nil)
	proposal := moveProposal(t, tn, bob)
	signed := moveProposal(t, tn, bob, carly)

	s := newScriptedSession(bob,
		session.RoleMessage(ledger.RoleSigner),
		session.ProposalMessage(proposal),
		session.FinalizedMessage(tn.notarise(t, signed)),
	)
	final, err := tn.nodes[carly].Respond(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, proposal.ID, final.ID)

	sent := s.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, session.KindSignature, sent[0].Kind)
	assert.Equal(t, signed.Signatures[carly], sent[0].Signature)

	got, err := tn.stores[carly].ReadTransaction(context.Background(), final.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Signatures, notaryParty)
}

func TestRespond_RedeliveredProposal(t *testing.T) {
	tn := newTestNetwork(t, nil)
	proposal := moveProposal(t, tn, bob)
	signed := moveProposal(t, tn, bob, carly)

	s := newScriptedSession(bob,
		session.RoleMessage(ledger.RoleSigner),
		session.ProposalMessage(proposal),
		session.ProposalMessage(proposal),
		session.FinalizedMessage(tn.notarise(t, signed)),
	)
	_, err := tn.nodes[carly].Respond(context.Background(), s)
	require.NoError(t, err)

	sent := s.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1])

	stored, err := tn.stores[carly].ReadSignature(context.Background(), proposal.ID, carly)
	require.NoError(t, err)
	assert.Equal(t, sent[0].Signature, stored)
}

func TestRespond_Rejections(t *testing.T) {
	tn := newTestNetwork(t, nil)

	tampered := moveProposal(t, tn, bob)
	tampered.Tx.Outputs = []ledger.TokenRecord{ledger.MustTokenRecord(alice, carly, 12)}

	unbalanced := tn.sign(t, ledger.Transaction{
		Inputs:   []ledger.StateAndRef{{Record: ledger.MustTokenRecord(alice, carly, 7), Ref: ledger.StateRef{TxID: "t1"}, Notary: notaryParty}},
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord(alice, bob, 8)},
		Commands: []ledger.Command{ledger.CommandMove},
		Signers:  []ledger.PartyID{bob, carly},
		Notary:   notaryParty,
	}, bob)

	irrelevant := tn.sign(t, ledger.Transaction{
		Inputs:   []ledger.StateAndRef{{Record: ledger.MustTokenRecord(alice, bob, 7), Ref: ledger.StateRef{TxID: "t1"}, Notary: notaryParty}},
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord(alice, dan, 7)},
		Commands: []ledger.Command{ledger.CommandMove},
		Signers:  []ledger.PartyID{bob, carly},
		Notary:   notaryParty,
	}, bob)

	tests := []struct {
		name     string
		proposal *ledger.SignedTransaction
		reason   string
	}{
		{"initiator has not signed", moveProposal(t, tn), MsgInitiatorMustSign},
		{"not a signer", tn.sign(t, ledger.Transaction{
			Inputs:   []ledger.StateAndRef{{Record: ledger.MustTokenRecord(alice, bob, 7), Ref: ledger.StateRef{TxID: "t1"}, Notary: notaryParty}},
			Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord(alice, carly, 7)},
			Commands: []ledger.Command{ledger.CommandMove},
			Signers:  []ledger.PartyID{bob},
			Notary:   notaryParty,
		}, bob), MsgMustBeSigner},
		{"content changed after signing", tampered, "The transaction id should match its content."},
		{"contract violation", unbalanced, "The sum of quantities for each issuer should be conserved."},
		{"not relevant", irrelevant, MsgMustBeRelevant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScriptedSession(bob, session.RoleMessage(ledger.RoleSigner), session.ProposalMessage(tt.proposal))
			_, err := tn.nodes[carly].Respond(context.Background(), s)
			require.Error(t, err)

			sent := s.sentMessages()
			require.Len(t, sent, 1)
			assert.Equal(t, session.KindRejection, sent[0].Kind)
			assert.Equal(t, tt.reason, sent[0].Reason)

			_, err = tn.stores[carly].ReadSignature(context.Background(), tt.proposal.ID, carly)
			assert.Error(t, err, "no signature may be logged for a rejected proposal")
		})
	}
}

func TestRespond_Aborted(t *testing.T) {
	tn := newTestNetwork(t, nil)
	log := &eventLog{}
	n := tn.nodes[carly]
	n.observer = append(n.observer, log)

	s := newScriptedSession(bob,
		session.RoleMessage(ledger.RoleSigner),
		session.ProposalMessage(moveProposal(t, tn, bob)),
		session.AbortMessage("counterparty Dan: no reply"),
	)
	_, err := n.Respond(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Equal(t, []string{"AwaitingRole", "Signing", "AwaitingFinalization", "Failed"}, log.states(RoleResponder))
}

func TestRespond_FinalizedMismatch(t *testing.T) {
	tn := newTestNetwork(t, nil)
	other := tn.sign(t, ledger.Transaction{
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord(alice, carly, 1)},
		Commands: []ledger.Command{ledger.CommandIssue},
		Signers:  []ledger.PartyID{alice},
		Notary:   notaryParty,
	}, alice)

	s := newScriptedSession(bob,
		session.RoleMessage(ledger.RoleSigner),
		session.ProposalMessage(moveProposal(t, tn, bob)),
		session.FinalizedMessage(tn.notarise(t, other)),
	)
	_, err := tn.nodes[carly].Respond(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgFinalizedDoesNotMatch)
	assert.Empty(t, tn.balance(t, carly))
}

func TestRespond_ParticipantRequiresNotarySignature(t *testing.T) {
	tn := newTestNetwork(t, nil)
	signed := moveProposal(t, tn, bob, carly)

	s := newScriptedSession(bob, session.RoleMessage(ledger.RoleParticipant), session.FinalizedMessage(signed))
	_, err := tn.nodes[dan].Respond(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing notary signature")

	s = newScriptedSession(bob, session.RoleMessage(ledger.RoleParticipant), session.FinalizedMessage(tn.notarise(t, signed)))
	_, err = tn.nodes[dan].Respond(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, map[ledger.PartyID]int64{alice: 12}, tn.balance(t, dan))
	assert.Empty(t, s.sentMessages())
}

func TestRespond_UnexpectedFirstMessage(t *testing.T) {
	tn := newTestNetwork(t, nil)

	s := newScriptedSession(bob, session.SignatureMessage([]byte("x")))
	_, err := tn.nodes[carly].Respond(context.Background(), s)
	require.Error(t, err)
	assert.True(t, IsProtocol(err))
}

func TestRespond_SessionClosed(t *testing.T) {
	tn := newTestNetwork(t, nil)

	s := newScriptedSession(bob, session.RoleMessage(ledger.RoleParticipant))
	close(s.in)
	_, err := tn.nodes[dan].Respond(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrClosed))
}
