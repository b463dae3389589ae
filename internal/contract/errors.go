package contract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RejectionCode categorizes verification failures.
type RejectionCode string

const (
	// ErrCodeShape indicates wrong presence or absence of inputs, outputs
	// or commands.
	ErrCodeShape RejectionCode = "SHAPE"

	// ErrCodeConservation indicates an issuer set or per-issuer sum mismatch.
	ErrCodeConservation RejectionCode = "CONSERVATION"

	// ErrCodeOverflow indicates a quantity sum exceeded int64. Never
	// conflated with a conservation mismatch.
	ErrCodeOverflow RejectionCode = "OVERFLOW"

	// ErrCodeAuthorization indicates a required signer is missing.
	ErrCodeAuthorization RejectionCode = "AUTHORIZATION"

	// ErrCodeSignature indicates a missing or invalid cryptographic signature.
	ErrCodeSignature RejectionCode = "SIGNATURE"

	// ErrCodeUnrecognizedCommand indicates a command outside Issue/Move/Redeem.
	ErrCodeUnrecognizedCommand RejectionCode = "UNRECOGNIZED_COMMAND"
)

// Rejection messages. The wording is part of the observable contract:
// counterparties surface it verbatim.
const (
	MsgSingleCommand       = "Required a single command."
	MsgIssueNoInputs       = "No tokens should be consumed when issuing."
	MsgIssueHasOutputs     = "There should be issued tokens."
	MsgIssuersSign         = "The issuers should sign."
	MsgMoveHasInputs       = "There should be tokens to move."
	MsgMoveHasOutputs      = "There should be moved tokens."
	MsgIssuersIdentical    = "Consumed and created issuers should be identical."
	MsgSumConserved        = "The sum of quantities for each issuer should be conserved."
	MsgHoldersSign         = "The current holders should sign."
	MsgRedeemHasInputs     = "There should be tokens to redeem."
	MsgRedeemNoOutputs     = "No tokens should be issued when redeeming."
	MsgQuantityOverflow    = "The sum of quantities overflows."
	MsgUnknownSigner       = "Every proposed signer should have a known key."
	MsgMissingSignature    = "Every proposed signer should have signed."
	MsgInvalidSignature    = "Every signature should be valid."
	MsgTransactionIDChange = "The transaction id should match its content."
)

// RejectionError is returned when a transaction fails verification.
type RejectionError struct {
	// Code identifies the rejection category.
	Code RejectionCode

	// Message is the human-readable rule that failed.
	Message string

	// Details contains additional context (issuer, party, sums).
	Details map[string]string
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

func reject(code RejectionCode, msg string, details map[string]string) *RejectionError {
	return &RejectionError{Code: code, Message: msg, Details: details}
}

// IsRejection reports whether err is (or wraps) a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// CodeOf returns the rejection code of err, or "" if err is not a rejection.
func CodeOf(err error) RejectionCode {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsOverflow reports whether err is an arithmetic overflow rejection.
func IsOverflow(err error) bool {
	return CodeOf(err) == ErrCodeOverflow
}

// IsAuthorization reports whether err is a missing-signer rejection.
func IsAuthorization(err error) bool {
	return CodeOf(err) == ErrCodeAuthorization
}
