package session

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/ledgerflow/internal/ledger"
)

var (
	// ErrClosed is returned when receiving on a session whose counterparty
	// closed it and every queued message has been read, or when sending on a
	// closed session.
	ErrClosed = errors.New("session closed")

	// ErrUnreachable is returned when the counterparty is disconnected.
	ErrUnreachable = errors.New("counterparty unreachable")

	// ErrNoAcceptor is returned when opening a session to a party that has
	// not registered with the network.
	ErrNoAcceptor = errors.New("no acceptor registered")

	// ErrThrottled is returned when the counterparty refuses new sessions
	// because its inbound rate limit is exhausted.
	ErrThrottled = errors.New("counterparty throttled inbound sessions")
)

// Session is one end of an ordered channel to a single counterparty.
type Session interface {
	// Counterparty returns the party at the other end.
	Counterparty() ledger.PartyID

	// Send delivers m to the counterparty. It never blocks on the receiver.
	Send(ctx context.Context, m Message) error

	// Receive blocks until the next message arrives or ctx is done.
	Receive(ctx context.Context) (Message, error)

	// Close ends this side of the session. The counterparty can still read
	// messages sent before Close.
	Close() error
}

// Opener opens sessions to counterparties.
type Opener interface {
	Open(ctx context.Context, counterparty ledger.PartyID) (Session, error)
}

// Acceptor handles an inbound session. It runs in its own goroutine and
// should return when the protocol instance completes or ctx is done.
type Acceptor func(ctx context.Context, s Session)

// pipe is the in-process Session implementation.
type pipe struct {
	net       *Network
	self      ledger.PartyID
	peer      ledger.PartyID
	in        *mailbox
	out       *mailbox
	closeOnce sync.Once
}

func (p *pipe) Counterparty() ledger.PartyID { return p.peer }

func (p *pipe) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.net.reachable(p.self, p.peer) {
		return ErrUnreachable
	}
	if !p.out.put(m.Clone()) {
		return ErrClosed
	}
	p.net.logger.Debug("session send", "from", p.self, "to", p.peer, "message", m.String())
	return nil
}

func (p *pipe) Receive(ctx context.Context) (Message, error) {
	m, err := p.in.take(ctx)
	if err != nil {
		return Message{}, err
	}
	p.net.logger.Debug("session receive", "at", p.self, "from", p.peer, "message", m.String())
	return m, nil
}

func (p *pipe) Close() error {
	p.closeOnce.Do(p.out.close)
	return nil
}
