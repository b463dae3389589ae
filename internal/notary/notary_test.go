package notary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/session"
	"github.com/roach88/ledgerflow/internal/store"
)

const notaryParty ledger.PartyID = "Notary"

type fixture struct {
	notary *Notary
	dir    *identity.Directory
	pairs  map[ledger.PartyID]*identity.KeyPair
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "notary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{dir: identity.NewDirectory(), pairs: map[ledger.PartyID]*identity.KeyPair{}}
	for _, p := range []ledger.PartyID{"Alice", "Bob", "Carly", notaryParty} {
		kp := identity.NewKeyPairFromSeed(p, []byte(p))
		f.pairs[p] = kp
		f.dir.Register(p, kp.PublicKey())
	}
	f.notary = New(f.pairs[notaryParty], f.dir, s, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return f
}

func (f *fixture) sign(t *testing.T, tx ledger.Transaction) *ledger.SignedTransaction {
	t.Helper()
	stx, err := ledger.NewSignedTransaction(tx)
	require.NoError(t, err)
	for _, p := range tx.Signers {
		sig, err := f.pairs[p].Sign(ledger.SigningPayload(stx.ID))
		require.NoError(t, err)
		stx.AddSignature(p, sig)
	}
	return stx
}

func (f *fixture) issue(t *testing.T, holder ledger.PartyID, qty int64) *ledger.SignedTransaction {
	return f.sign(t, ledger.Transaction{
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord("Alice", holder, qty)},
		Commands: []ledger.Command{ledger.CommandIssue},
		Signers:  []ledger.PartyID{"Alice"},
		Notary:   notaryParty,
	})
}

func (f *fixture) move(t *testing.T, from *ledger.SignedTransaction, to ledger.PartyID) *ledger.SignedTransaction {
	in := from.OutRefs()[0]
	return f.sign(t, ledger.Transaction{
		Inputs:   []ledger.StateAndRef{in},
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord(in.Record.Issuer(), to, in.Record.Quantity())},
		Commands: []ledger.Command{ledger.CommandMove},
		Signers:  []ledger.PartyID{in.Record.Holder()},
		Notary:   notaryParty,
	})
}

type recordingSession struct {
	mu   sync.Mutex
	peer ledger.PartyID
	sent []session.Message
	err  error
}

func (s *recordingSession) Counterparty() ledger.PartyID { return s.peer }

func (s *recordingSession) Send(_ context.Context, m session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *recordingSession) Receive(ctx context.Context) (session.Message, error) {
	<-ctx.Done()
	return session.Message{}, ctx.Err()
}

func (s *recordingSession) Close() error { return nil }

func TestFinalize_CountersignsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stx := f.issue(t, "Bob", 10)

	bob := &recordingSession{peer: "Bob"}
	final, err := f.notary.Finalize(ctx, stx, []session.Session{bob})
	require.NoError(t, err)

	assert.Equal(t, stx.ID, final.ID)
	assert.Contains(t, final.SignedBy(), notaryParty)
	assert.NoError(t, contract.VerifySignatures(final, f.dir))
	assert.NotContains(t, stx.SignedBy(), notaryParty, "input transaction must not be mutated")

	require.Len(t, bob.sent, 1)
	assert.Equal(t, session.KindFinalized, bob.sent[0].Kind)
	assert.Equal(t, final.ID, bob.sent[0].Tx.ID)
}

func TestFinalize_DoubleSpend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, "Bob", 10)
	_, err := f.notary.Finalize(ctx, issue, nil)
	require.NoError(t, err)

	first := f.move(t, issue, "Carly")
	second := f.move(t, issue, "Alice")

	_, err = f.notary.Finalize(ctx, first, nil)
	require.NoError(t, err)

	_, err = f.notary.Finalize(ctx, second, nil)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, second.ID, ce.TxID)
	assert.Equal(t, first.ID, ce.ConsumedBy)
}

func TestFinalize_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, "Bob", 10)
	move := f.move(t, issue, "Carly")

	a, err := f.notary.Finalize(ctx, move, nil)
	require.NoError(t, err)
	b, err := f.notary.Finalize(ctx, move, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestFinalize_ConcurrentConflictsCommitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, "Bob", 10)

	candidates := []*ledger.SignedTransaction{
		f.move(t, issue, "Carly"),
		f.move(t, issue, "Alice"),
		f.move(t, issue, notaryParty),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, c := range candidates {
		wg.Add(1)
		go func(stx *ledger.SignedTransaction) {
			defer wg.Done()
			_, err := f.notary.Finalize(ctx, stx, nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if IsConflict(err) {
				conflicts++
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, conflicts)
}

func TestFinalize_MissingSignature(t *testing.T) {
	f := newFixture(t)
	stx := f.issue(t, "Bob", 10)
	delete(stx.Signatures, "Alice")

	_, err := f.notary.Finalize(context.Background(), stx, nil)
	require.Error(t, err)
	assert.Equal(t, contract.ErrCodeSignature, contract.CodeOf(err))
}

func TestFinalize_ContractViolation(t *testing.T) {
	f := newFixture(t)
	// Signed by the holder only: valid signatures, invalid contract.
	stx := f.sign(t, ledger.Transaction{
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord("Alice", "Bob", 10)},
		Commands: []ledger.Command{ledger.CommandIssue},
		Signers:  []ledger.PartyID{"Bob"},
		Notary:   notaryParty,
	})

	_, err := f.notary.Finalize(context.Background(), stx, nil)
	require.Error(t, err)
	assert.True(t, contract.IsAuthorization(err))
}

func TestFinalize_WrongNotary(t *testing.T) {
	f := newFixture(t)
	stx := f.sign(t, ledger.Transaction{
		Outputs:  []ledger.TokenRecord{ledger.MustTokenRecord("Alice", "Bob", 10)},
		Commands: []ledger.Command{ledger.CommandIssue},
		Signers:  []ledger.PartyID{"Alice"},
		Notary:   "OtherNotary",
	})

	_, err := f.notary.Finalize(context.Background(), stx, nil)
	assert.ErrorIs(t, err, ErrWrongNotary)
}

func TestFinalize_DeliveryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	stx := f.issue(t, "Bob", 10)

	broken := &recordingSession{peer: "Bob", err: session.ErrUnreachable}
	final, err := f.notary.Finalize(context.Background(), stx, []session.Session{broken})
	require.NoError(t, err)
	assert.NotNil(t, final)
}
