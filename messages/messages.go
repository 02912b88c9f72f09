// Package messages defines the wire envelope every actor's mailbox carries
// between nodes: one tagged union, addressed by subject and sender, so a
// single Transport can multiplex evaluation, approval, validation, and
// distribution traffic over one channel. Grounded on the teacher's p2p
// envelope pattern (a kind byte plus one populated payload) and MessagePack
// for the wire codec, as used throughout wire.Marshal.
package messages

import (
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/model"
)

// Kind tags which payload field of TapleMessage is populated.
type Kind uint8

const (
	KindEvaluation Kind = iota
	KindApproval
	KindValidation
	KindDistribution
	KindLedger
	KindEvent
)

// EvaluationMessage carries a request out to the Evaluator network and its
// response back.
type EvaluationMessage struct {
	Request  model.Signed[model.EventRequest]
	GovVersion uint64
	Response *model.EvaluationResponse `msgpack:",omitempty"`
}

// ApprovalMessage carries one signer's Ok/Ko vote (or a request for one).
type ApprovalMessage struct {
	SubjectID    identifier.Identifier
	SN           uint64
	ProposalHash identifier.Identifier
	Vote         *model.Acceptance  `msgpack:",omitempty"`
	Signature    *model.Signature   `msgpack:",omitempty"`
}

// ValidationMessage carries a ValidationProof out for signature, or a
// signature back.
type ValidationMessage struct {
	Proof     model.ValidationProof
	Signature *model.Signature `msgpack:",omitempty"`
}

// DistributionMessage covers event push, pull (range request/response), and
// fields for a provide/received signature-set handshake, which
// distribution.Distributor does not act on.
type DistributionMessage struct {
	SubjectID identifier.Identifier
	// Push carries a single newly-applied event.
	Push *model.Event `msgpack:",omitempty"`
	// PullFromSN/PullToSN name a requested range; PullEvents carries the reply.
	PullFromSN uint64
	PullToSN   uint64
	PullEvents []model.Event `msgpack:",omitempty"`
	// ProvideSignatures asks the peer to send back the signatures it holds
	// for (SubjectID, SN); SignaturesReceived carries them.
	ProvideSignaturesSN uint64
	SignaturesReceivedSN uint64
	Signatures           []model.Signature `msgpack:",omitempty"`
}

// LedgerMessage relays a finalized proposal plus its subject signature for
// local application, once evaluation/approval/validation have all completed.
type LedgerMessage struct {
	Proposal         model.Proposal
	Approved         bool
	SubjectSignature model.Signature
}

// EventMessage is the minimal envelope a client uses to submit a new
// request for processing.
type EventMessage struct {
	Request model.Signed[model.EventRequest]
}

// TapleMessage is the tagged union carried over the wire between nodes.
// Only the field named by Kind is populated.
type TapleMessage struct {
	Kind   Kind
	Sender identifier.Identifier
	Target identifier.Identifier `msgpack:",omitempty"`
	// CorrelationID ties a request message to its eventual reply (e.g. a
	// pull request to the range response it provokes), the way the
	// teacher's gateway services tag retried HTTP calls with an
	// idempotency key.
	CorrelationID string `msgpack:",omitempty"`

	Evaluation   *EvaluationMessage   `msgpack:",omitempty"`
	Approval     *ApprovalMessage     `msgpack:",omitempty"`
	Validation   *ValidationMessage   `msgpack:",omitempty"`
	Distribution *DistributionMessage `msgpack:",omitempty"`
	Ledger       *LedgerMessage       `msgpack:",omitempty"`
	Event        *EventMessage        `msgpack:",omitempty"`
}
