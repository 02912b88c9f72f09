// Package governance implements the Governance Oracle: a set of pure
// functions over a governance subject's state at a specific version,
// answering the role, quorum, and schema questions every other component
// needs but must never derive itself.
package governance

import (
	"encoding/json"
	"math"

	"github.com/taple-project/taple-core-go/identifier"
)

// Stage names a point in the event lifecycle a role or policy applies to.
type Stage string

const (
	StageCreate   Stage = "Create"
	StageInvoke   Stage = "Invoke"
	StageEvaluate Stage = "Evaluate"
	StageApprove  Stage = "Approve"
	StageValidate Stage = "Validate"
	StageWitness  Stage = "Witness"
)

// QuorumKind is the shape of a quorum policy.
type QuorumKind uint8

const (
	QuorumMajority QuorumKind = iota
	QuorumFixed
	QuorumPercentage
)

// Quorum is one of Majority, Fixed(n), or Percentage(p). Threshold computes
// the minimum signer count required out of total eligible signers.
type Quorum struct {
	Kind       QuorumKind
	FixedCount uint64
	Percent    float64
}

// Threshold returns the minimum number of distinct signers required, per
// spec: Majority = floor(n/2)+1, Fixed(k) = k, Percentage(p) = ceil(p*n).
func (q Quorum) Threshold(total int) int {
	switch q.Kind {
	case QuorumFixed:
		return int(q.FixedCount)
	case QuorumPercentage:
		return int(math.Ceil(q.Percent * float64(total)))
	default:
		return total/2 + 1
	}
}

// RoleEntry grants a member, selected by key id, the ability to act in
// Stage for events under SchemaID/Namespace. Namespace == "" matches any
// namespace; SchemaID == "" matches any schema.
type RoleEntry struct {
	Who       identifier.Identifier
	SchemaID  string
	Namespace string
	Stage     Stage
}

func (r RoleEntry) matches(schemaID, namespace string, stage Stage) bool {
	if r.Stage != stage {
		return false
	}
	if r.SchemaID != "" && r.SchemaID != schemaID {
		return false
	}
	if r.Namespace != "" && r.Namespace != namespace {
		return false
	}
	return true
}

// specificity scores how narrowly a role targets (namespace, schema); a
// higher score wins the "most specific match" tie-break.
func (r RoleEntry) specificity() int {
	score := 0
	if r.SchemaID != "" {
		score++
	}
	if r.Namespace != "" {
		score++
	}
	return score
}

// SchemaEntry names one schema this governance subject recognizes: its JSON
// Schema, the initial state new subjects of this schema start from, and a
// digest of the contract bytecode that governs its Fact transitions.
type SchemaEntry struct {
	SchemaID       string
	JSONSchema     json.RawMessage
	InitialState   json.RawMessage
	ContractDigest identifier.Identifier
	Contract       string // JS source executed by the evaluator sandbox
}

// PolicyEntry is the quorum a (schema, stage) pair requires. Declaration
// order in State.Policies is preserved and used as the tie-break when two
// policies match a query with equal specificity.
type PolicyEntry struct {
	SchemaID string
	Stage    Stage
	Quorum   Quorum
}

// State is the decoded form of a governance subject's JSON state.
type State struct {
	Members  map[string]identifier.Identifier `json:"members"`
	Roles    []RoleEntry                      `json:"roles"`
	Schemas  map[string]SchemaEntry            `json:"schemas"`
	Policies []PolicyEntry                     `json:"policies"`
}

// DefaultGenesisState is the state a freshly created governance subject
// starts from: no members beyond its own genesis owner, no extra roles or
// schemas, and a single "governance" schema policy of Majority on every
// stage — scenario 1 of the end-to-end tests.
func DefaultGenesisState(owner identifier.Identifier) State {
	majority := Quorum{Kind: QuorumMajority}
	stages := []Stage{StageCreate, StageInvoke, StageEvaluate, StageApprove, StageValidate, StageWitness}
	policies := make([]PolicyEntry, 0, len(stages))
	for _, st := range stages {
		policies = append(policies, PolicyEntry{SchemaID: "governance", Stage: st, Quorum: majority})
	}
	return State{
		Members: map[string]identifier.Identifier{"owner": owner},
		Roles:   nil,
		Schemas: map[string]SchemaEntry{},
		Policies: policies,
	}
}

// Marshal encodes the state as the canonical JSON document stored as the
// governance subject's Subject.State.
func (s State) Marshal() (json.RawMessage, error) {
	return json.Marshal(s)
}

func Unmarshal(raw json.RawMessage) (State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, err
	}
	return s, nil
}
