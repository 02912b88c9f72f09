package model

import (
	"encoding/json"

	"github.com/taple-project/taple-core-go/identifier"
)

// LifecycleState is a subject's position in its own lifecycle, independent
// of its event count.
type LifecycleState uint8

const (
	Active LifecycleState = iota
	EOL
)

func (s LifecycleState) String() string {
	switch s {
	case Active:
		return "Active"
	case EOL:
		return "EOL"
	default:
		return "Unknown"
	}
}

// Metadata bundles the addressing facts an event or evaluation request
// needs about its subject, so a consumer can validate in isolation without
// a live subject lookup. Grounded on event_content.rs's Metadata struct.
type Metadata struct {
	Namespace    string
	SubjectID    identifier.Identifier
	GovernanceID identifier.Identifier
	SchemaID     string
	Owner        identifier.Identifier
}

// Subject is the mutable per-entity record the Ledger owns exclusively.
type Subject struct {
	SubjectID     identifier.Identifier
	Owner         identifier.Identifier
	GovernanceID  identifier.Identifier
	SchemaID      string
	Namespace     string
	State         json.RawMessage
	SN            uint64
	HeadEventHash identifier.Identifier
	Lifecycle     LifecycleState
}

// IsGovernance reports whether this subject is its own governance subject.
func (s Subject) IsGovernance() bool {
	return s.SubjectID.Equal(s.GovernanceID)
}

// Metadata projects the addressing facts needed elsewhere in the pipeline.
func (s Subject) Metadata() Metadata {
	return Metadata{
		Namespace:    s.Namespace,
		SubjectID:    s.SubjectID,
		GovernanceID: s.GovernanceID,
		SchemaID:     s.SchemaID,
		Owner:        s.Owner,
	}
}
