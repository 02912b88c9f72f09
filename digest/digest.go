// Package digest provides canonical content hashing: Borsh-serialize a value,
// then Blake3-256 the resulting bytes. This is the one hashing path used for
// every chained invariant in the ledger (event linkage, state hashes,
// validation proof digests).
package digest

import (
	"github.com/near/borsh-go"
	"lukechampine.com/blake3"

	"github.com/taple-project/taple-core-go/identifier"
)

// Of Borsh-serializes v and returns its Blake3-256 digest wrapped as an Identifier.
// Borsh encodes struct fields in declaration order, so the canonical order for
// any hashed type is simply the order its Go fields are declared in.
func Of(v any) (identifier.Identifier, error) {
	encoded, err := borsh.Serialize(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(encoded)
	return identifier.NewDigestIdentifier(sum[:])
}

// MustOf panics on serialization error. Reserved for call sites operating on
// types whose Borsh encoding cannot fail (no interfaces, no maps with
// non-string keys).
func MustOf(v any) identifier.Identifier {
	id, err := Of(v)
	if err != nil {
		panic(err)
	}
	return id
}
