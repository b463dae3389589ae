// Package notary implements the finalization authority: it checks a fully
// signed transaction, refuses inputs that an earlier transaction consumed,
// countersigns, and distributes the result.
package notary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/session"
	"github.com/roach88/ledgerflow/internal/store"
)

// ErrWrongNotary is returned when a transaction or one of its inputs names a
// different notary.
var ErrWrongNotary = errors.New("transaction is not assigned to this notary")

// ConflictError reports a double spend: an input of the transaction was
// already consumed by a different finalized transaction.
type ConflictError struct {
	TxID       string
	Ref        ledger.StateRef
	ConsumedBy string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction %s conflicts: input %s already consumed by %s", e.TxID, e.Ref, e.ConsumedBy)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// SpentRegister records which transaction consumed each input. A refused
// batch is reported as *store.SpentError. Implemented by store.Store.
type SpentRegister interface {
	MarkSpent(ctx context.Context, txID string, refs []ledger.StateRef) error
}

// Notary serializes finalization of the transactions assigned to it.
type Notary struct {
	signer   identity.Signer
	keys     contract.KeyResolver
	register SpentRegister
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures a Notary.
type Option func(*Notary)

// WithLogger sets the logger.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notary) {
		n.logger = logger
	}
}

// New creates a notary that signs as signer.Party().
func New(signer identity.Signer, keys contract.KeyResolver, register SpentRegister, opts ...Option) *Notary {
	n := &Notary{
		signer:   signer,
		keys:     keys,
		register: register,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Party returns the notary's identity.
func (n *Notary) Party() ledger.PartyID {
	return n.signer.Party()
}

// Finalize commits stx and sends the countersigned transaction on every
// session.
//
// stx must carry valid signatures from all proposed signers and pass
// contract verification. If any input was already consumed by another
// transaction, nothing is committed and a *ConflictError is returned.
// Finalizing the same transaction twice returns the same result.
func (n *Notary) Finalize(ctx context.Context, stx *ledger.SignedTransaction, sessions []session.Session) (*ledger.SignedTransaction, error) {
	self := n.signer.Party()
	if stx.Tx.Notary != self {
		return nil, fmt.Errorf("finalize %s: %w: names %q", stx.ID, ErrWrongNotary, stx.Tx.Notary)
	}
	for _, in := range stx.Tx.Inputs {
		if in.Notary != self {
			return nil, fmt.Errorf("finalize %s: input %s: %w: names %q", stx.ID, in.Ref, ErrWrongNotary, in.Notary)
		}
	}
	if err := contract.VerifySignatures(stx, n.keys, self); err != nil {
		return nil, fmt.Errorf("finalize %s: %w", stx.ID, err)
	}
	if err := contract.VerifyTransaction(stx.Tx, n.keys); err != nil {
		return nil, fmt.Errorf("finalize %s: %w", stx.ID, err)
	}

	refs := make([]ledger.StateRef, len(stx.Tx.Inputs))
	for i, in := range stx.Tx.Inputs {
		refs[i] = in.Ref
	}

	n.mu.Lock()
	err := n.register.MarkSpent(ctx, stx.ID, refs)
	n.mu.Unlock()
	if err != nil {
		var spent *store.SpentError
		if errors.As(err, &spent) {
			n.logger.Info("double spend refused", "tx", stx.ID, "input", spent.Ref.String(), "consumed_by", spent.ConsumedBy)
			return nil, &ConflictError{TxID: stx.ID, Ref: spent.Ref, ConsumedBy: spent.ConsumedBy}
		}
		return nil, fmt.Errorf("finalize %s: %w", stx.ID, err)
	}

	sig, err := n.signer.Sign(ledger.SigningPayload(stx.ID))
	if err != nil {
		return nil, fmt.Errorf("finalize %s: sign: %w", stx.ID, err)
	}
	final := stx.Clone()
	final.AddSignature(self, sig)

	n.logger.Info("transaction finalized", "tx", final.ID, "inputs", len(refs), "outputs", len(final.Tx.Outputs))

	for _, s := range sessions {
		if err := s.Send(ctx, session.FinalizedMessage(final)); err != nil {
			// The transaction is committed; a party that misses the message
			// can fetch it later.
			n.logger.Warn("finalized transaction not delivered", "tx", final.ID, "party", s.Counterparty(), "error", err)
		}
	}
	return final, nil
}
