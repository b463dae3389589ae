package contract

import (
	"testing"

	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
)

const (
	alice ledger.PartyID = "Alice"
	bob   ledger.PartyID = "Bob"
	carly ledger.PartyID = "Carly"
	dan   ledger.PartyID = "Dan"
)

type testKeys struct {
	dir   *identity.Directory
	pairs map[ledger.PartyID]*identity.KeyPair
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	k := &testKeys{dir: identity.NewDirectory(), pairs: map[ledger.PartyID]*identity.KeyPair{}}
	for _, p := range []ledger.PartyID{alice, bob, carly, dan} {
		kp := identity.NewKeyPairFromSeed(p, []byte(p))
		k.pairs[p] = kp
		k.dir.Register(p, kp.PublicKey())
	}
	return k
}

func (k *testKeys) keysOf(parties ...ledger.PartyID) []identity.PublicKey {
	out := make([]identity.PublicKey, len(parties))
	for i, p := range parties {
		out[i] = k.pairs[p].PublicKey()
	}
	return out
}

func rec(issuer, holder ledger.PartyID, qty int64) ledger.TokenRecord {
	return ledger.MustTokenRecord(issuer, holder, qty)
}

func recs(rs ...ledger.TokenRecord) []ledger.TokenRecord { return rs }

func cmds(cs ...ledger.Command) []ledger.Command { return cs }
