package contract

import (
	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// VerifySignatures checks that stx carries a valid signature from every
// proposed signer except those listed in allowedMissing, and that every
// attached signature verifies against its party's key.
func VerifySignatures(stx *ledger.SignedTransaction, keys KeyResolver, allowedMissing ...ledger.PartyID) error {
	if err := stx.CheckID(); err != nil {
		return reject(ErrCodeSignature, MsgTransactionIDChange, map[string]string{"id": stx.ID})
	}

	allowed := make(map[ledger.PartyID]bool, len(allowedMissing))
	for _, p := range allowedMissing {
		allowed[p] = true
	}
	for _, p := range stx.Tx.Signers {
		if _, ok := stx.Signatures[p]; !ok && !allowed[p] {
			return reject(ErrCodeSignature, MsgMissingSignature, map[string]string{"missing": string(p)})
		}
	}

	payload := ledger.SigningPayload(stx.ID)
	for _, p := range stx.SignedBy() {
		key, err := keys.OwningKey(p)
		if err != nil {
			return reject(ErrCodeSignature, MsgInvalidSignature, map[string]string{"party": string(p), "reason": "unknown party"})
		}
		if !identity.Verify(key, payload, stx.Signatures[p]) {
			return reject(ErrCodeSignature, MsgInvalidSignature, map[string]string{"party": string(p)})
		}
	}
	return nil
}
