package model

import (
	"encoding/json"

	"github.com/taple-project/taple-core-go/identifier"
)

// Acceptance is the tri-state outcome of an approval vote. Evaluation does
// not use it; it reports success through EvaluationResponse.EvaluationSuccess.
type Acceptance uint8

const (
	AcceptanceOk Acceptance = iota
	AcceptanceKo
	AcceptanceError
)

// EvaluationRequest is the exact bundle handed to the Evaluator: the
// subject's addressing context, its prior state, the request to run, and
// the governance version observed when the evaluation was scheduled.
// Grounded on original_source's EventPreEvaluation/Context/SubjectContext.
type EvaluationRequest struct {
	GovernanceID identifier.Identifier
	SchemaID     string
	Owner        identifier.Identifier
	Namespace    string
	PriorState   json.RawMessage
	Request      Signed[EventRequest]
	GovVersion   uint64
}

// EvaluationResponse is what the Evaluator hands back after running the
// contract: the JSON Patch from prior to new state, a hash binding the
// request that produced it, the new state's hash, whether execution
// succeeded, and whether the schema requires an approval round.
type EvaluationResponse struct {
	Patch             json.RawMessage
	EvaluationReqHash identifier.Identifier
	StateHash         identifier.Identifier
	EvaluationSuccess bool
	ApprovalRequired  bool
}

// Approval is one node's signed vote on a proposal that required approval.
type Approval struct {
	ProposalHash identifier.Identifier
	Acceptance   Acceptance
}

// Proposal is the event-in-waiting: the original signed request, the sn and
// governance version it targets, the evaluation outcome (once evaluation
// quorum is reached), and the evaluator signature set backing it.
type Proposal struct {
	Request             Signed[EventRequest]
	SN                  uint64
	GovVersion          uint64
	Evaluation          *EvaluationResponse
	Patch               json.RawMessage
	EvaluatorSignatures []Signature
	ApproverSignatures  []Signature
}

// Event is the durable, chain-linked record the Ledger appends. sn and
// PreviousHash are the chain-linkage invariants; StateHash is the subject
// state after applying Patch.
type Event struct {
	Proposal         Proposal
	SubjectSignature Signature
	Accepted         bool
	PreviousHash     identifier.Identifier
	StateHash        identifier.Identifier
}
