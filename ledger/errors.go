package ledger

import "errors"

var (
	ErrSubjectExists        = errors.New("ledger: subject already exists")
	ErrSubjectNotFound      = errors.New("ledger: subject not found")
	ErrEventNotFound        = errors.New("ledger: event not found")
	ErrSequenceGap          = errors.New("ledger: sn out of order")
	ErrPreviousHashMismatch = errors.New("ledger: previous hash mismatch")
	ErrGovernanceMismatch   = errors.New("ledger: governance version mismatch")
	ErrSignatureInvalid     = errors.New("ledger: signature invalid")
	ErrQuorumUnmet          = errors.New("ledger: quorum unmet")
	ErrNotAuthorized        = errors.New("ledger: signer not authorized for this stage")
	ErrSubjectTerminal      = errors.New("ledger: subject is EOL")
	ErrStateHashMismatch    = errors.New("ledger: evaluated state hash mismatch")
)
