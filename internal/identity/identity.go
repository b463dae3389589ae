// Package identity provides party key pairs, signing and the directory
// that resolves a party to its owning key.
//
// Keys are ed25519. Public keys are rendered as base58 text so they can
// appear in configuration files and CLI output.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// ErrUnknownParty is returned when a party has no registered key.
var ErrUnknownParty = errors.New("unknown party")

// PublicKey is an ed25519 public key. It is an array so it can be compared
// and used as a map key.
type PublicKey [ed25519.PublicKeySize]byte

// String returns the base58 form of the key.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// ParsePublicKey decodes the base58 form produced by PublicKey.String.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parse public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("parse public key: got %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	var k PublicKey
	copy(k[:], raw)
	return k, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Signer produces a signature over a byte payload.
type Signer interface {
	Party() ledger.PartyID
	PublicKey() PublicKey
	Sign(payload []byte) ([]byte, error)
}

// KeyPair is a party's signing key. It implements Signer.
type KeyPair struct {
	party   ledger.PartyID
	public  PublicKey
	private ed25519.PrivateKey
}

// NewKeyPairFromSeed derives a deterministic key pair from seed material.
// The seed is hashed so any length is accepted.
func NewKeyPairFromSeed(party ledger.PartyID, seed []byte) *KeyPair {
	sum := sha256.Sum256(seed)
	return newKeyPair(party, ed25519.NewKeyFromSeed(sum[:]))
}

// GenerateKeyPair creates a random key pair.
func GenerateKeyPair(party ledger.PartyID) (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", party, err)
	}
	return newKeyPair(party, priv), nil
}

func newKeyPair(party ledger.PartyID, priv ed25519.PrivateKey) *KeyPair {
	var pub PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return &KeyPair{party: party, public: pub, private: priv}
}

// Party returns the owning party.
func (k *KeyPair) Party() ledger.PartyID { return k.party }

// PublicKey returns the public half.
func (k *KeyPair) PublicKey() PublicKey { return k.public }

// Sign signs payload. ed25519 signatures are deterministic, so signing the
// same payload twice yields the same bytes.
func (k *KeyPair) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(k.private, payload), nil
}

// Verify reports whether sig is a valid signature of payload by pub.
func Verify(pub PublicKey, payload, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), payload, sig)
}

// Directory maps parties to their owning keys.
//
// Thread-safety: Directory is safe for concurrent use. Lookups never block
// writers for long; registration is expected at startup.
type Directory struct {
	mu   sync.RWMutex
	keys map[ledger.PartyID]PublicKey
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{keys: make(map[ledger.PartyID]PublicKey)}
}

// Register records the owning key of party, replacing any earlier key.
func (d *Directory) Register(party ledger.PartyID, key PublicKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[party] = key
}

// OwningKey returns the key of party or ErrUnknownParty.
func (d *Directory) OwningKey(party ledger.PartyID) (PublicKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.keys[party]
	if !ok {
		return PublicKey{}, fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	return key, nil
}

// Parties returns the registered parties in sorted order.
func (d *Directory) Parties() []ledger.PartyID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	parties := make([]ledger.PartyID, 0, len(d.keys))
	for p := range d.keys {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })
	return parties
}
