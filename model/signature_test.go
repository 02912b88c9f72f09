package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taple-project/taple-core-go/identifier"
)

func TestSignatureSetDeduplicatesBySignerAndContent(t *testing.T) {
	signer, _ := identifier.NewKeyIdentifier(identifier.Ed25519, make([]byte, 32))
	content, _ := identifier.NewDigestIdentifier(make([]byte, 32))

	set := NewSignatureSet()
	require.True(t, set.Add(Signature{Signer: signer, ContentHash: content, Timestamp: 1, Bytes: []byte("a")}))
	// Same signer, same content, different timestamp and bytes: must not
	// grow the tally — this is the duplicate-insensitive quorum invariant.
	require.False(t, set.Add(Signature{Signer: signer, ContentHash: content, Timestamp: 2, Bytes: []byte("b")}))
	require.Equal(t, 1, set.Len())
}

func TestSignatureSetDistinctSigners(t *testing.T) {
	signerA, _ := identifier.NewKeyIdentifier(identifier.Ed25519, make([]byte, 32))
	bRaw := make([]byte, 32)
	bRaw[0] = 1
	signerB, _ := identifier.NewKeyIdentifier(identifier.Ed25519, bRaw)
	content, _ := identifier.NewDigestIdentifier(make([]byte, 32))

	set := NewSignatureSet()
	set.Add(Signature{Signer: signerA, ContentHash: content})
	set.Add(Signature{Signer: signerB, ContentHash: content})
	require.Equal(t, 2, set.Len())
}
