package flow

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/notary"
	"github.com/roach88/ledgerflow/internal/session"
	"github.com/roach88/ledgerflow/internal/store"
)

const (
	alice       ledger.PartyID = "Alice"
	bob         ledger.PartyID = "Bob"
	carly       ledger.PartyID = "Carly"
	dan         ledger.PartyID = "Dan"
	notaryParty ledger.PartyID = "Notary"
)

var testParties = []ledger.PartyID{alice, bob, carly, dan}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testNetwork is a set of nodes sharing one in-process network and notary.
// Each node has its own store.
type testNetwork struct {
	net    *session.Network
	dir    *identity.Directory
	pairs  map[ledger.PartyID]*identity.KeyPair
	stores map[ledger.PartyID]*store.Store
	nodes  map[ledger.PartyID]*Node
	notary *notary.Notary
}

// newTestNetwork starts a node per test party. opts returns extra options
// for a party's node, given its store, and may be nil.
func newTestNetwork(t *testing.T, opts func(ledger.PartyID, *store.Store) []Option) *testNetwork {
	t.Helper()
	tn := &testNetwork{
		net:    session.NewNetwork(session.WithLogger(quietLogger())),
		dir:    identity.NewDirectory(),
		pairs:  map[ledger.PartyID]*identity.KeyPair{},
		stores: map[ledger.PartyID]*store.Store{},
		nodes:  map[ledger.PartyID]*Node{},
	}
	for _, p := range append([]ledger.PartyID{notaryParty}, testParties...) {
		kp := identity.NewKeyPairFromSeed(p, []byte(p))
		tn.pairs[p] = kp
		tn.dir.Register(p, kp.PublicKey())

		s, err := store.Open(filepath.Join(t.TempDir(), string(p)+".db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		tn.stores[p] = s
	}
	// Registered after the stores so responders stop before they close.
	t.Cleanup(tn.net.Close)
	tn.notary = notary.New(tn.pairs[notaryParty], tn.dir, tn.stores[notaryParty], notary.WithLogger(quietLogger()))

	for _, p := range testParties {
		nodeOpts := []Option{WithLogger(quietLogger())}
		if opts != nil {
			nodeOpts = append(nodeOpts, opts(p, tn.stores[p])...)
		}
		n := NewNode(Config{
			Signer:      tn.pairs[p],
			Keys:        tn.dir,
			Sessions:    tn.net.Endpoint(p),
			Vault:       tn.stores[p],
			Records:     tn.stores[p],
			Signatures:  tn.stores[p],
			Notary:      tn.notary,
			NotaryParty: notaryParty,
		}, nodeOpts...)
		tn.nodes[p] = n
		tn.net.Register(p, n.HandleSession)
	}
	return tn
}

// balance waits for every responder to finish, then returns p's holdings.
func (tn *testNetwork) balance(t *testing.T, p ledger.PartyID) map[ledger.PartyID]int64 {
	t.Helper()
	tn.net.Wait()
	sum, err := tn.stores[p].Balance(context.Background(), p)
	require.NoError(t, err)
	out := map[ledger.PartyID]int64{}
	for k, v := range sum {
		out[k] = v
	}
	return out
}

// sign builds a signed transaction with signatures from the given parties.
func (tn *testNetwork) sign(t *testing.T, tx ledger.Transaction, by ...ledger.PartyID) *ledger.SignedTransaction {
	t.Helper()
	stx, err := ledger.NewSignedTransaction(tx)
	require.NoError(t, err)
	for _, p := range by {
		sig, err := tn.pairs[p].Sign(ledger.SigningPayload(stx.ID))
		require.NoError(t, err)
		stx.AddSignature(p, sig)
	}
	return stx
}

// eventLog collects flow events.
type eventLog struct {
	mu     sync.Mutex
	events []FlowEvent
}

func (l *eventLog) StateChanged(_ context.Context, ev FlowEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// states returns the states entered by role, in order.
func (l *eventLog) states(role string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Role == role {
			out = append(out, ev.State)
		}
	}
	return out
}

// scriptedSession replays queued messages and records what is sent.
type scriptedSession struct {
	peer ledger.PartyID
	in   chan session.Message

	mu   sync.Mutex
	sent []session.Message
}

func newScriptedSession(peer ledger.PartyID, msgs ...session.Message) *scriptedSession {
	s := &scriptedSession{peer: peer, in: make(chan session.Message, len(msgs)+8)}
	for _, m := range msgs {
		s.in <- m
	}
	return s
}

func (s *scriptedSession) Counterparty() ledger.PartyID { return s.peer }

func (s *scriptedSession) Send(_ context.Context, m session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *scriptedSession) Receive(ctx context.Context) (session.Message, error) {
	select {
	case m, ok := <-s.in:
		if !ok {
			return session.Message{}, session.ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return session.Message{}, ctx.Err()
	}
}

func (s *scriptedSession) Close() error { return nil }

func (s *scriptedSession) sentMessages() []session.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Message(nil), s.sent...)
}

// refusingOpener fails the test if any session is opened.
type refusingOpener struct{ t *testing.T }

func (o refusingOpener) Open(_ context.Context, p ledger.PartyID) (session.Session, error) {
	o.t.Errorf("unexpected session opened to %s", p)
	return nil, session.ErrUnreachable
}
