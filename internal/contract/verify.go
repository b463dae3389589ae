package contract

import (
	"errors"

	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// KeyResolver resolves a party to its owning key.
// Implemented by identity.Directory.
type KeyResolver interface {
	OwningKey(party ledger.PartyID) (identity.PublicKey, error)
}

// Verify accepts or rejects a candidate transaction.
//
// signers is the set of keys that will have signed the transaction. keys
// resolves the owning key of issuers and holders. A nil return means the
// transaction satisfies every rule for its command.
func Verify(
	inputs, outputs []ledger.TokenRecord,
	commands []ledger.Command,
	signers []identity.PublicKey,
	keys KeyResolver,
) error {
	cmd, ok := ledger.Transaction{Commands: commands}.Command()
	if !ok {
		return reject(ErrCodeShape, MsgSingleCommand, nil)
	}

	signerSet := make(map[identity.PublicKey]struct{}, len(signers))
	for _, k := range signers {
		signerSet[k] = struct{}{}
	}

	switch cmd {
	case ledger.CommandIssue:
		return verifyIssue(inputs, outputs, signerSet, keys)
	case ledger.CommandMove:
		return verifyMove(inputs, outputs, signerSet, keys)
	case ledger.CommandRedeem:
		return verifyRedeem(inputs, outputs, signerSet, keys)
	default:
		return reject(ErrCodeUnrecognizedCommand, "Unknown command "+cmd.String()+".", nil)
	}
}

// VerifyTransaction runs Verify over tx, treating the keys of the proposed
// signers as the signer set.
func VerifyTransaction(tx ledger.Transaction, keys KeyResolver) error {
	signers := make([]identity.PublicKey, 0, len(tx.Signers))
	for _, p := range tx.Signers {
		k, err := keys.OwningKey(p)
		if err != nil {
			return reject(ErrCodeAuthorization, MsgUnknownSigner, map[string]string{"party": string(p)})
		}
		signers = append(signers, k)
	}
	return Verify(tx.InputRecords(), tx.Outputs, tx.Commands, signers, keys)
}

func verifyIssue(inputs, outputs []ledger.TokenRecord, signers map[identity.PublicKey]struct{}, keys KeyResolver) error {
	if len(inputs) != 0 {
		return reject(ErrCodeShape, MsgIssueNoInputs, nil)
	}
	if len(outputs) == 0 {
		return reject(ErrCodeShape, MsgIssueHasOutputs, nil)
	}
	// The "above 0" constraint is enforced by ledger.NewTokenRecord.
	// Holders need not sign an issuance.
	return requireSigners(signers, issuersOf(outputs), keys, MsgIssuersSign)
}

func verifyMove(inputs, outputs []ledger.TokenRecord, signers map[identity.PublicKey]struct{}, keys KeyResolver) error {
	if len(inputs) == 0 {
		return reject(ErrCodeShape, MsgMoveHasInputs, nil)
	}
	if len(outputs) == 0 {
		return reject(ErrCodeShape, MsgMoveHasOutputs, nil)
	}

	inputSums, err := SumByIssuer(inputs)
	if err != nil {
		return err
	}
	outputSums, err := SumByIssuer(outputs)
	if err != nil {
		return err
	}
	if !inputSums.SameIssuers(outputSums) {
		return reject(ErrCodeConservation, MsgIssuersIdentical, nil)
	}
	for _, issuer := range inputSums.Issuers() {
		if inputSums[issuer] != outputSums[issuer] {
			return reject(ErrCodeConservation, MsgSumConserved, map[string]string{
				"issuer": string(issuer),
				"input":  formatInt(inputSums[issuer]),
				"output": formatInt(outputSums[issuer]),
			})
		}
	}

	// Only the current holders sign a move, not the issuers.
	return requireSigners(signers, holdersOf(inputs), keys, MsgHoldersSign)
}

func verifyRedeem(inputs, outputs []ledger.TokenRecord, signers map[identity.PublicKey]struct{}, keys KeyResolver) error {
	if len(inputs) == 0 {
		return reject(ErrCodeShape, MsgRedeemHasInputs, nil)
	}
	if len(outputs) != 0 {
		return reject(ErrCodeShape, MsgRedeemNoOutputs, nil)
	}
	if err := requireSigners(signers, issuersOf(inputs), keys, MsgIssuersSign); err != nil {
		return err
	}
	return requireSigners(signers, holdersOf(inputs), keys, MsgHoldersSign)
}

// requireSigners checks that the owning key of every party is in signers.
// parties must already be distinct and sorted.
func requireSigners(signers map[identity.PublicKey]struct{}, parties []ledger.PartyID, keys KeyResolver, msg string) error {
	for _, p := range parties {
		k, err := keys.OwningKey(p)
		if err != nil {
			details := map[string]string{"party": string(p)}
			if errors.Is(err, identity.ErrUnknownParty) {
				details["reason"] = "unknown party"
			}
			return reject(ErrCodeAuthorization, msg, details)
		}
		if _, ok := signers[k]; !ok {
			return reject(ErrCodeAuthorization, msg, map[string]string{"missing": string(p)})
		}
	}
	return nil
}

func issuersOf(records []ledger.TokenRecord) []ledger.PartyID {
	return distinct(records, ledger.TokenRecord.Issuer)
}

func holdersOf(records []ledger.TokenRecord) []ledger.PartyID {
	return distinct(records, ledger.TokenRecord.Holder)
}

func distinct(records []ledger.TokenRecord, pick func(ledger.TokenRecord) ledger.PartyID) []ledger.PartyID {
	seen := make(IssuerSum, len(records))
	for _, r := range records {
		seen[pick(r)] = 0
	}
	return seen.Issuers()
}

// RequiredSigners returns the parties whose signatures cmd requires over
// the given records, sorted. Unknown commands require nobody; Verify
// rejects them separately.
func RequiredSigners(cmd ledger.Command, inputs, outputs []ledger.TokenRecord) []ledger.PartyID {
	switch cmd {
	case ledger.CommandIssue:
		return issuersOf(outputs)
	case ledger.CommandMove:
		return holdersOf(inputs)
	case ledger.CommandRedeem:
		both := append(issuersOf(inputs), holdersOf(inputs)...)
		set := make(IssuerSum, len(both))
		for _, p := range both {
			set[p] = 0
		}
		return set.Issuers()
	default:
		return nil
	}
}
