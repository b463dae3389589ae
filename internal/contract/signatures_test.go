package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerflow/internal/ledger"
)

func signedMove(t *testing.T, k *testKeys, signers ...ledger.PartyID) *ledger.SignedTransaction {
	t.Helper()
	tx := ledger.Transaction{
		Inputs: []ledger.StateAndRef{
			{Record: rec(alice, bob, 10), Ref: ledger.StateRef{TxID: "t0", Index: 0}, Notary: "Notary"},
			{Record: rec(alice, carly, 5), Ref: ledger.StateRef{TxID: "t0", Index: 1}, Notary: "Notary"},
		},
		Outputs:  recs(rec(alice, dan, 15)),
		Commands: cmds(ledger.CommandMove),
		Signers:  []ledger.PartyID{bob, carly},
		Notary:   "Notary",
	}
	stx, err := ledger.NewSignedTransaction(tx)
	require.NoError(t, err)
	for _, p := range signers {
		sig, err := k.pairs[p].Sign(ledger.SigningPayload(stx.ID))
		require.NoError(t, err)
		stx.AddSignature(p, sig)
	}
	return stx
}

func TestVerifySignatures_Complete(t *testing.T) {
	k := newTestKeys(t)
	stx := signedMove(t, k, bob, carly)
	assert.NoError(t, VerifySignatures(stx, k.dir))
}

func TestVerifySignatures_Missing(t *testing.T) {
	k := newTestKeys(t)
	stx := signedMove(t, k, bob)

	err := VerifySignatures(stx, k.dir)
	assertVerdict(t, err, ErrCodeSignature, MsgMissingSignature)

	assert.NoError(t, VerifySignatures(stx, k.dir, carly))
}

func TestVerifySignatures_WrongKey(t *testing.T) {
	k := newTestKeys(t)
	stx := signedMove(t, k, bob)
	forged, err := k.pairs[dan].Sign(ledger.SigningPayload(stx.ID))
	require.NoError(t, err)
	stx.AddSignature(carly, forged)

	err = VerifySignatures(stx, k.dir)
	assertVerdict(t, err, ErrCodeSignature, MsgInvalidSignature)
}

func TestVerifySignatures_TamperedContent(t *testing.T) {
	k := newTestKeys(t)
	stx := signedMove(t, k, bob, carly)
	stx.Tx.Outputs = recs(rec(alice, carly, 15))

	err := VerifySignatures(stx, k.dir)
	assertVerdict(t, err, ErrCodeSignature, MsgTransactionIDChange)
}

func TestVerifySignatures_ExtraSignerMustBeValid(t *testing.T) {
	k := newTestKeys(t)
	stx := signedMove(t, k, bob, carly)
	stx.AddSignature(dan, []byte("not a signature"))

	err := VerifySignatures(stx, k.dir)
	assertVerdict(t, err, ErrCodeSignature, MsgInvalidSignature)
}
