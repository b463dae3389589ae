package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/session"
	"github.com/roach88/ledgerflow/internal/store"
)

// DefaultSignatureTimeout bounds how long an initiator waits for
// counterparty signatures.
const DefaultSignatureTimeout = 30 * time.Second

// RecordQuerier pages through unconsumed records.
type RecordQuerier interface {
	QueryRecords(ctx context.Context, q store.VaultQuery) ([]ledger.StateAndRef, error)
}

// Vault is the read side of a node's record storage.
// Implemented by store.Store.
type Vault interface {
	RecordQuerier
	LookupRecords(ctx context.Context, refs []ledger.StateRef) ([]ledger.StateAndRef, error)
}

// RecordSink persists finalized transactions.
// Implemented by store.Store.
type RecordSink interface {
	RecordTransaction(ctx context.Context, stx *ledger.SignedTransaction) (bool, error)
}

// SignatureLog remembers the signature produced for each transaction so a
// redelivered proposal is answered without signing again.
// Implemented by store.Store.
type SignatureLog interface {
	WriteSignature(ctx context.Context, txID string, party ledger.PartyID, sig []byte) ([]byte, bool, error)
}

// Finalizer commits a fully signed transaction and distributes it on the
// given sessions. Implemented by notary.Notary.
type Finalizer interface {
	Finalize(ctx context.Context, stx *ledger.SignedTransaction, sessions []session.Session) (*ledger.SignedTransaction, error)
}

// Config holds the collaborators of a Node.
type Config struct {
	Signer      identity.Signer
	Keys        contract.KeyResolver
	Sessions    session.Opener
	Vault       Vault
	Records     RecordSink
	Signatures  SignatureLog
	Notary      Finalizer
	NotaryParty ledger.PartyID
}

// Node runs signing protocol instances for one party.
type Node struct {
	Config

	timeout  time.Duration
	pageSize int
	checks   []AcceptanceCheck
	observer Observers
	ids      IDGenerator
	logger   *slog.Logger
}

// Option configures a Node.
type Option func(*Node)

// WithTimeout sets how long an initiator waits for signatures.
//
// Default: 30 seconds (DefaultSignatureTimeout)
func WithTimeout(d time.Duration) Option {
	return func(n *Node) {
		n.timeout = d
	}
}

// WithPageSize sets the vault page size used when fetching records by
// amount.
//
// Default: store.DefaultPageSize
func WithPageSize(size int) Option {
	return func(n *Node) {
		n.pageSize = size
	}
}

// WithChecks appends responder acceptance checks. They run in order after
// RelevanceCheck.
func WithChecks(checks ...AcceptanceCheck) Option {
	return func(n *Node) {
		n.checks = append(n.checks, checks...)
	}
}

// WithObserver adds an observer of state transitions.
func WithObserver(obs Observer) Option {
	return func(n *Node) {
		n.observer = append(n.observer, obs)
	}
}

// WithIDGenerator sets the flow id generator.
//
// Default: UUIDv7Generator
func WithIDGenerator(ids IDGenerator) Option {
	return func(n *Node) {
		n.ids = ids
	}
}

// WithLogger sets the logger.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// NewNode creates a node for cfg.Signer.Party().
func NewNode(cfg Config, opts ...Option) *Node {
	n := &Node{
		Config:   cfg,
		timeout:  DefaultSignatureTimeout,
		pageSize: store.DefaultPageSize,
		checks:   []AcceptanceCheck{RelevanceCheck},
		observer: Observers{MetricsObserver},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("party", string(cfg.Signer.Party()))
	return n
}

// Party returns the local party.
func (n *Node) Party() ledger.PartyID {
	return n.Signer.Party()
}

// HeldQuantity is one output of a multi-record issuance.
type HeldQuantity struct {
	Holder   ledger.PartyID
	Quantity int64
}

// Issue creates quantity new tokens issued by the local party and held by
// holder.
func (n *Node) Issue(ctx context.Context, holder ledger.PartyID, quantity int64) (*ledger.SignedTransaction, error) {
	return n.IssueMany(ctx, []HeldQuantity{{Holder: holder, Quantity: quantity}})
}

// IssueMany issues one record per entry in a single transaction. A holder
// may appear more than once.
func (n *Node) IssueMany(ctx context.Context, held []HeldQuantity) (*ledger.SignedTransaction, error) {
	outputs := make([]ledger.TokenRecord, 0, len(held))
	for _, h := range held {
		rec, err := ledger.NewTokenRecord(n.Party(), h.Holder, h.Quantity)
		if err != nil {
			return nil, fmt.Errorf("issue: %w", err)
		}
		outputs = append(outputs, rec)
	}
	return n.initiate(ctx, ledger.Transaction{
		Outputs:  outputs,
		Commands: []ledger.Command{ledger.CommandIssue},
		Notary:   n.NotaryParty,
	})
}

// Move consumes the records at refs, resolved from the local vault, and
// produces outputs.
func (n *Node) Move(ctx context.Context, refs []ledger.StateRef, outputs []ledger.TokenRecord) (*ledger.SignedTransaction, error) {
	inputs, err := n.Vault.LookupRecords(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("move: %w", err)
	}
	return n.MoveStates(ctx, inputs, outputs)
}

// MoveStates consumes inputs and produces outputs. Inputs held by other
// parties are allowed; their holders are asked to sign.
func (n *Node) MoveStates(ctx context.Context, inputs []ledger.StateAndRef, outputs []ledger.TokenRecord) (*ledger.SignedTransaction, error) {
	return n.initiate(ctx, ledger.Transaction{
		Inputs:   inputs,
		Outputs:  outputs,
		Commands: []ledger.Command{ledger.CommandMove},
	})
}

// Redeem destroys the records at refs, resolved from the local vault.
func (n *Node) Redeem(ctx context.Context, refs []ledger.StateRef) (*ledger.SignedTransaction, error) {
	inputs, err := n.Vault.LookupRecords(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("redeem: %w", err)
	}
	return n.RedeemStates(ctx, inputs)
}

// RedeemStates destroys inputs. Every issuer and holder of an input signs.
func (n *Node) RedeemStates(ctx context.Context, inputs []ledger.StateAndRef) (*ledger.SignedTransaction, error) {
	return n.initiate(ctx, ledger.Transaction{
		Inputs:   inputs,
		Commands: []ledger.Command{ledger.CommandRedeem},
	})
}

// RedeemByAmount redeems exactly total tokens of issuer held by the local
// party.
//
// Records are fetched from the vault until their sum reaches total. If the
// sum overshoots, a Move first splits them into an exact record and a
// change record, both held by the local party; the exact record is then
// redeemed. The returned move is nil when no split was needed.
func (n *Node) RedeemByAmount(ctx context.Context, issuer ledger.PartyID, total int64) (move, redeem *ledger.SignedTransaction, err error) {
	acc, err := FetchWorthAtLeast(ctx, n.Vault, FetchQuery{
		Issuer:   issuer,
		Holder:   n.Party(),
		Notary:   n.NotaryParty,
		Target:   total,
		PageSize: n.pageSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redeem %d of %s: %w", total, issuer, err)
	}

	toRedeem := acc.States
	if acc.Sum > total {
		exact, err := ledger.NewTokenRecord(issuer, n.Party(), total)
		if err != nil {
			return nil, nil, err
		}
		change, err := ledger.NewTokenRecord(issuer, n.Party(), acc.Sum-total)
		if err != nil {
			return nil, nil, err
		}
		move, err = n.MoveStates(ctx, acc.States, []ledger.TokenRecord{exact, change})
		if err != nil {
			return nil, nil, fmt.Errorf("redeem %d of %s: split: %w", total, issuer, err)
		}
		toRedeem = move.OutRefs()[:1]
	}

	redeem, err = n.RedeemStates(ctx, toRedeem)
	if err != nil {
		return move, nil, fmt.Errorf("redeem %d of %s: %w", total, issuer, err)
	}
	return move, redeem, nil
}
