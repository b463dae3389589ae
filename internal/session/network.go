package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// Network connects registered parties in process.
//
// Opening a session starts the counterparty's Acceptor in a new goroutine,
// so every inbound protocol instance runs concurrently with the others.
type Network struct {
	mu        sync.RWMutex
	acceptors map[ledger.PartyID]Acceptor
	down      map[ledger.PartyID]bool
	throttle  *throttle
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NetworkOption configures a Network.
type NetworkOption func(*Network)

// WithLogger sets the logger for session traffic.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) NetworkOption {
	return func(n *Network) {
		n.logger = logger
	}
}

// WithInboundLimit caps how fast each party accepts new sessions.
// Opens beyond the limit fail with ErrThrottled.
func WithInboundLimit(limit rate.Limit, burst int) NetworkOption {
	return func(n *Network) {
		n.throttle = newThrottle(limit, burst)
	}
}

// NewNetwork creates an empty network.
func NewNetwork(opts ...NetworkOption) *Network {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Network{
		acceptors: make(map[ledger.PartyID]Acceptor),
		down:      make(map[ledger.PartyID]bool),
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Register installs the handler for sessions opened to party, replacing
// any earlier one.
func (n *Network) Register(party ledger.PartyID, accept Acceptor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acceptors[party] = accept
}

// Endpoint returns an Opener that opens sessions on behalf of self.
func (n *Network) Endpoint(self ledger.PartyID) Opener {
	return endpoint{net: n, self: self}
}

// Disconnect makes party unreachable: opens to or from it fail, and sends
// on its existing sessions fail with ErrUnreachable.
func (n *Network) Disconnect(party ledger.PartyID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[party] = true
}

// Reconnect undoes Disconnect.
func (n *Network) Reconnect(party ledger.PartyID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.down, party)
}

// Wait blocks until every acceptor goroutine has returned.
func (n *Network) Wait() {
	n.wg.Wait()
}

// Close cancels every running acceptor and waits for them to return.
func (n *Network) Close() {
	n.cancel()
	n.wg.Wait()
}

func (n *Network) reachable(a, b ledger.PartyID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !n.down[a] && !n.down[b]
}

func (n *Network) open(ctx context.Context, self, peer ledger.PartyID) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.RLock()
	accept, ok := n.acceptors[peer]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open session %s->%s: %w", self, peer, ErrNoAcceptor)
	}
	if !n.reachable(self, peer) {
		return nil, fmt.Errorf("open session %s->%s: %w", self, peer, ErrUnreachable)
	}
	if n.throttle != nil && !n.throttle.allow(peer) {
		return nil, fmt.Errorf("open session %s->%s: %w", self, peer, ErrThrottled)
	}

	toPeer, toSelf := newMailbox(), newMailbox()
	local := &pipe{net: n, self: self, peer: peer, in: toSelf, out: toPeer}
	remote := &pipe{net: n, self: peer, peer: self, in: toPeer, out: toSelf}

	n.logger.Debug("session opened", "from", self, "to", peer)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer remote.Close()
		accept(n.ctx, remote)
	}()

	return local, nil
}

type endpoint struct {
	net  *Network
	self ledger.PartyID
}

func (e endpoint) Open(ctx context.Context, counterparty ledger.PartyID) (Session, error) {
	return e.net.open(ctx, e.self, counterparty)
}
