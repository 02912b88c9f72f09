package model

import "github.com/taple-project/taple-core-go/identifier"

// Signature binds a signer to a digest of the content it signed, plus the
// instant it signed and the raw signature bytes. Equality and the
// deduplication key consider only (Signer, ContentHash): two signatures
// from the same signer over the same content are the same signature for
// quorum-tallying purposes regardless of when each arrived. This is the
// mechanism that makes quorum tallies duplicate-insensitive.
type Signature struct {
	Signer      identifier.Identifier
	ContentHash identifier.Identifier
	Timestamp   Timestamp
	Bytes       []byte
}

// Key returns the deduplication key used by SignatureSet and every quorum
// check in governance/approval/validation.
func (s Signature) Key() string {
	return s.Signer.String() + "|" + s.ContentHash.String()
}

// SignatureSet accumulates signatures from distinct (signer, content)
// pairs, ignoring a repeat signature that differs only by timestamp or by
// signature bytes (a signer re-signing the same content is a no-op).
type SignatureSet struct {
	byKey map[string]Signature
}

func NewSignatureSet() *SignatureSet {
	return &SignatureSet{byKey: map[string]Signature{}}
}

// Add inserts sig, returning true if it was not already present.
func (s *SignatureSet) Add(sig Signature) bool {
	key := sig.Key()
	if _, ok := s.byKey[key]; ok {
		return false
	}
	s.byKey[key] = sig
	return true
}

func (s *SignatureSet) Len() int {
	return len(s.byKey)
}

// Signers returns the distinct signer identifiers present in the set.
func (s *SignatureSet) Signers() []identifier.Identifier {
	out := make([]identifier.Identifier, 0, len(s.byKey))
	for _, sig := range s.byKey {
		out = append(out, sig.Signer)
	}
	return out
}

func (s *SignatureSet) Slice() []Signature {
	out := make([]Signature, 0, len(s.byKey))
	for _, sig := range s.byKey {
		out = append(out, sig)
	}
	return out
}

// Has reports whether signer has already contributed a signature.
func (s *SignatureSet) Has(signer identifier.Identifier) bool {
	for _, sig := range s.byKey {
		if sig.Signer.Equal(signer) {
			return true
		}
	}
	return false
}
