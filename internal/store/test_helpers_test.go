package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerflow/internal/ledger"
)

const testNotary ledger.PartyID = "Notary"

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTransaction builds an unsigned transaction. Storage does not
// verify contracts or signatures.
func createTestTransaction(t *testing.T, cmd ledger.Command, inputs []ledger.StateAndRef, outputs ...ledger.TokenRecord) *ledger.SignedTransaction {
	t.Helper()
	stx, err := ledger.NewSignedTransaction(ledger.Transaction{
		Inputs:   inputs,
		Outputs:  outputs,
		Commands: []ledger.Command{cmd},
		Notary:   testNotary,
	})
	require.NoError(t, err)
	return stx
}

func rec(issuer, holder ledger.PartyID, qty int64) ledger.TokenRecord {
	return ledger.MustTokenRecord(issuer, holder, qty)
}
