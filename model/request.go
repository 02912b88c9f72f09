package model

import (
	"encoding/json"

	"github.com/taple-project/taple-core-go/identifier"
)

// RequestKind tags which variant of EventRequest is populated.
type RequestKind uint8

const (
	RequestCreate RequestKind = iota
	RequestFact
	RequestTransfer
	RequestEOL
)

// CreateRequest asks for a brand new subject under governanceID's schema.
type CreateRequest struct {
	GovernanceID identifier.Identifier
	SchemaID     string
	Namespace    string
	Name         string
	PublicKey    identifier.Identifier
}

// FactRequest asks for subjectID's contract to be invoked with payload.
type FactRequest struct {
	SubjectID identifier.Identifier
	Payload   json.RawMessage
}

// TransferRequest reassigns subjectID's ownership to a new public key.
type TransferRequest struct {
	SubjectID    identifier.Identifier
	NewPublicKey identifier.Identifier
}

// EOLRequest marks subjectID terminal: no further events will be accepted.
type EOLRequest struct {
	SubjectID identifier.Identifier
}

// EventRequest is the tagged union of everything a client can submit. Only
// the field named by Kind is populated; this mirrors a Rust enum without
// requiring dynamic dispatch at the Borsh/MessagePack boundary.
type EventRequest struct {
	Kind     RequestKind
	Create   *CreateRequest   `msgpack:",omitempty"`
	Fact     *FactRequest     `msgpack:",omitempty"`
	Transfer *TransferRequest `msgpack:",omitempty"`
	EOL      *EOLRequest      `msgpack:",omitempty"`
}

// SubjectID returns the subject the request targets, or the empty
// identifier for Create (the subject does not exist yet).
func (r EventRequest) SubjectID() identifier.Identifier {
	switch r.Kind {
	case RequestFact:
		return r.Fact.SubjectID
	case RequestTransfer:
		return r.Transfer.SubjectID
	case RequestEOL:
		return r.EOL.SubjectID
	default:
		return ""
	}
}

// Signed wraps any payload with the signature of the party that submitted
// it, verified once at ingress and carried thereafter as evidence.
type Signed[T any] struct {
	Content   T
	Signature Signature
}
