package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/session"
)

// collectSignatures waits concurrently for one reply per session and adds
// every valid signature to stx. The first rejection, invalid signature or
// transport failure cancels the remaining waits.
func (n *Node) collectSignatures(ctx context.Context, stx *ledger.SignedTransaction, sessions []session.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { mSignatureWait.Observe(time.Since(start).Seconds()) }()

	waitCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var mu sync.Mutex
	payload := ledger.SigningPayload(stx.ID)
	g, gctx := errgroup.WithContext(waitCtx)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			party := s.Counterparty()
			msg, err := s.Receive(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return &ProtocolError{Counterparty: party, Reason: "no reply", Err: err}
			}

			switch msg.Kind {
			case session.KindSignature:
				key, err := n.Keys.OwningKey(party)
				if err != nil {
					return &ProtocolError{Counterparty: party, Reason: "unknown signer", Err: err}
				}
				if !identity.Verify(key, payload, msg.Signature) {
					return &ProtocolError{Counterparty: party, Reason: "invalid signature"}
				}
				mu.Lock()
				stx.AddSignature(party, msg.Signature)
				mu.Unlock()
				return nil
			case session.KindRejection:
				return &ProtocolError{Counterparty: party, Reason: msg.Reason}
			default:
				return &ProtocolError{Counterparty: party, Reason: "unexpected " + msg.Kind.String() + " message"}
			}
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		mu.Lock()
		missing := stx.MissingSignatures()
		mu.Unlock()
		return fmt.Errorf("%w after %s: missing %v", ErrTimeout, n.timeout, missing)
	}
	return err
}
