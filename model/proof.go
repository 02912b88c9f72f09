package model

import "github.com/taple-project/taple-core-go/identifier"

// ValidationProof is the notarized checkpoint validators sign: it binds a
// subject's chain head, the governance version it was built against, and
// enough addressing context to verify the chain independent of a live
// subject lookup. Notary and Validation are treated as one role here; both
// produced near-identical proof shapes in the source this was distilled
// from.
type ValidationProof struct {
	SubjectID         identifier.Identifier
	SN                uint64
	StateHash         identifier.Identifier
	PrevProofDigest   identifier.Identifier
	GovernanceVersion uint64
	OwnerKey          identifier.Identifier
	Namespace         string
	SchemaID          string
	GenesisOwner      identifier.Identifier
	EventHash         identifier.Identifier
}
