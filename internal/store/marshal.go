package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// marshalTransaction converts a signed transaction to JSON TEXT for storage.
// Map keys (signatures by party) are emitted sorted by encoding/json, so the
// stored body is stable across writes.
func marshalTransaction(stx *ledger.SignedTransaction) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stx); err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalTransaction parses a stored body and checks that its content
// still hashes to the stored id.
func unmarshalTransaction(data string) (*ledger.SignedTransaction, error) {
	var stx ledger.SignedTransaction
	if err := json.Unmarshal([]byte(data), &stx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	if stx.Signatures == nil {
		stx.Signatures = map[ledger.PartyID][]byte{}
	}
	if err := stx.CheckID(); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &stx, nil
}
