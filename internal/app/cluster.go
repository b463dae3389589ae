// Package app assembles a runnable ledgerflow network from a configuration:
// one store and node per party, an in-process session network and the
// notary.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/roach88/ledgerflow/internal/config"
	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/flow"
	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/notary"
	"github.com/roach88/ledgerflow/internal/session"
	"github.com/roach88/ledgerflow/internal/store"
)

// ErrUnknownParty is returned for a party the network does not define.
var ErrUnknownParty = errors.New("unknown party")

// Cluster is a running network.
type Cluster struct {
	cfg     *config.Network
	net     *session.Network
	dir     *identity.Directory
	notary  *notary.Notary
	nodes   map[ledger.PartyID]*flow.Node
	stores  map[ledger.PartyID]*store.Store
	logger  *slog.Logger
	nodeOps func(ledger.PartyID) []flow.Option
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithLogger sets the logger shared by every component.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cluster) {
		c.logger = logger
	}
}

// WithNodeOptions adds per-party node options, applied after those derived
// from the configuration.
func WithNodeOptions(fn func(party ledger.PartyID) []flow.Option) Option {
	return func(c *Cluster) {
		c.nodeOps = fn
	}
}

// Keys derives every party's key pair from its configured seed, and the
// directory resolving their public keys.
func Keys(cfg *config.Network) (map[ledger.PartyID]*identity.KeyPair, *identity.Directory) {
	keys := make(map[ledger.PartyID]*identity.KeyPair, len(cfg.Parties))
	dir := identity.NewDirectory()
	for _, p := range cfg.Parties {
		kp := identity.NewKeyPairFromSeed(p.Name, []byte(p.Seed))
		keys[p.Name] = kp
		dir.Register(p.Name, kp.PublicKey())
	}
	return keys, dir
}

// Open starts the network described by cfg. Each party's store lives at
// dataDir/<party>.db and survives Close.
func Open(cfg *config.Network, dataDir string, opts ...Option) (*Cluster, error) {
	c := &Cluster{
		cfg:    cfg,
		nodes:  make(map[ledger.PartyID]*flow.Node),
		stores: make(map[ledger.PartyID]*store.Store),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	netOpts := []session.NetworkOption{session.WithLogger(c.logger)}
	if cfg.InboundRate > 0 {
		netOpts = append(netOpts, session.WithInboundLimit(rate.Limit(cfg.InboundRate), cfg.InboundBurst))
	}
	c.net = session.NewNetwork(netOpts...)

	keys, dir := Keys(cfg)
	c.dir = dir
	for _, p := range cfg.Parties {
		s, err := store.Open(filepath.Join(dataDir, string(p.Name)+".db"))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open store for %s: %w", p.Name, err)
		}
		c.stores[p.Name] = s
	}

	c.notary = notary.New(keys[cfg.Notary], c.dir, c.stores[cfg.Notary], notary.WithLogger(c.logger))

	for _, p := range cfg.Nodes() {
		s := c.stores[p.Name]
		nodeOpts := []flow.Option{
			flow.WithLogger(c.logger),
			flow.WithTimeout(cfg.SignatureTimeout),
			flow.WithPageSize(cfg.PageSize),
			flow.WithObserver(flow.CheckpointObserver(s, c.logger)),
		}
		if p.MaxQuantity > 0 {
			nodeOpts = append(nodeOpts, flow.WithChecks(flow.MaxQuantityCheck(p.MaxQuantity)))
		}
		if c.nodeOps != nil {
			nodeOpts = append(nodeOpts, c.nodeOps(p.Name)...)
		}

		n := flow.NewNode(flow.Config{
			Signer:      keys[p.Name],
			Keys:        c.dir,
			Sessions:    c.net.Endpoint(p.Name),
			Vault:       s,
			Records:     s,
			Signatures:  s,
			Notary:      c.notary,
			NotaryParty: cfg.Notary,
		}, nodeOpts...)
		c.nodes[p.Name] = n
		c.net.Register(p.Name, n.HandleSession)
	}

	c.logger.Debug("cluster started", "parties", len(cfg.Parties), "notary", cfg.Notary, "data", dataDir)
	return c, nil
}

// Node returns the node of party.
func (c *Cluster) Node(party ledger.PartyID) (*flow.Node, error) {
	n, ok := c.nodes[party]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	return n, nil
}

// Store returns the store of party. The notary has one too.
func (c *Cluster) Store(party ledger.PartyID) (*store.Store, error) {
	s, ok := c.stores[party]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	return s, nil
}

// Directory returns the key directory of every party.
func (c *Cluster) Directory() *identity.Directory {
	return c.dir
}

// Network returns the session network.
func (c *Cluster) Network() *session.Network {
	return c.net
}

// Balance waits for in-flight responders, then sums the records party
// holds in its own vault.
func (c *Cluster) Balance(ctx context.Context, party ledger.PartyID) (contract.IssuerSum, error) {
	s, err := c.Store(party)
	if err != nil {
		return nil, err
	}
	c.Wait()
	return s.Balance(ctx, party)
}

// Holdings waits for in-flight responders, then lists the unconsumed
// records party holds.
func (c *Cluster) Holdings(ctx context.Context, party ledger.PartyID) ([]ledger.StateAndRef, error) {
	s, err := c.Store(party)
	if err != nil {
		return nil, err
	}
	c.Wait()

	var out []ledger.StateAndRef
	for page := 1; ; page++ {
		states, err := s.QueryRecords(ctx, store.VaultQuery{Holder: party, Page: page, PageSize: c.cfg.PageSize})
		if err != nil {
			return nil, err
		}
		if len(states) == 0 {
			return out, nil
		}
		out = append(out, states...)
	}
}

// IncompleteFlows returns the ids of flows of party that never reached a
// terminal state.
func (c *Cluster) IncompleteFlows(ctx context.Context, party ledger.PartyID) ([]string, error) {
	s, err := c.Store(party)
	if err != nil {
		return nil, err
	}
	return s.FindIncompleteFlows(ctx)
}

// Wait blocks until every responder has finished.
func (c *Cluster) Wait() {
	c.net.Wait()
}

// Close stops every responder and closes the stores.
func (c *Cluster) Close() error {
	if c.net != nil {
		c.net.Close()
	}
	var errs []error
	for _, s := range c.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
