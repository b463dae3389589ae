package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTransaction = "ledgerflow/tx/v1"
	DomainSignature   = "ledgerflow/signature/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// TransactionID computes the content-addressed ID of tx.
// Collected signatures are not part of the ID: every signer signs the same
// identity.
func TransactionID(tx Transaction) (string, error) {
	canonical, err := MarshalCanonical(canonicalTransaction(tx))
	if err != nil {
		return "", fmt.Errorf("TransactionID: failed to marshal: %w", err)
	}
	return hex.EncodeToString(hashWithDomain(DomainTransaction, canonical)), nil
}

// MustTransactionID is like TransactionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransactionID(tx Transaction) string {
	id, err := TransactionID(tx)
	if err != nil {
		panic(err)
	}
	return id
}

// SigningPayload returns the bytes every party signs for txID.
func SigningPayload(txID string) []byte {
	return hashWithDomain(DomainSignature, []byte(txID))
}

func canonicalRecord(r TokenRecord) map[string]any {
	return map[string]any{
		"issuer":   r.issuer,
		"holder":   r.holder,
		"quantity": r.quantity,
	}
}

func canonicalTransaction(tx Transaction) map[string]any {
	inputs := make([]any, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = map[string]any{
			"record": canonicalRecord(in.Record),
			"ref":    in.Ref.String(),
			"notary": in.Notary,
		}
	}
	outputs := make([]any, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputs[i] = canonicalRecord(out)
	}
	commands := make([]any, len(tx.Commands))
	for i, c := range tx.Commands {
		commands[i] = c.String()
	}
	signers := make([]any, len(tx.Signers))
	for i, s := range tx.Signers {
		signers[i] = s
	}
	return map[string]any{
		"inputs":   inputs,
		"outputs":  outputs,
		"commands": commands,
		"signers":  signers,
		"notary":   tx.Notary,
	}
}
