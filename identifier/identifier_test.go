package identifier

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyIdentifierRoundTrip(t *testing.T) {
	raw := make([]byte, rawLenEd25519)
	_, err := rand.Read(raw)
	require.NoError(t, err)

	id, err := NewKeyIdentifier(Ed25519, raw)
	require.NoError(t, err)
	require.Len(t, id.String(), 1+43)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
}

func TestSecp256k1Length(t *testing.T) {
	raw := make([]byte, rawLenSecp256k1)
	id, err := NewKeyIdentifier(Secp256k1, raw)
	require.NoError(t, err)
	require.Len(t, id.String(), 1+87)
}

func TestSignatureIdentifierLength(t *testing.T) {
	raw := make([]byte, rawLenSignature)
	id, err := NewSignatureIdentifier(Ed25519Sha512, raw)
	require.NoError(t, err)
	require.Len(t, id.String(), 2+86)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
}

func TestDigestIdentifierRoundTrip(t *testing.T) {
	raw := make([]byte, rawLenDigest)
	_, _ = rand.Read(raw)
	id, err := NewDigestIdentifier(raw)
	require.NoError(t, err)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("E" + "AAAA")
	require.ErrorIs(t, err, ErrWrongLength)
}

func TestParseRejectsUnknownCode(t *testing.T) {
	_, err := Parse("Z1234")
	require.ErrorIs(t, err, ErrUnknownCode)
}

func TestEqualityIgnoresNothingButBytes(t *testing.T) {
	raw1 := make([]byte, rawLenEd25519)
	raw2 := make([]byte, rawLenEd25519)
	raw2[0] = 1

	id1, _ := NewKeyIdentifier(Ed25519, raw1)
	id2, _ := NewKeyIdentifier(Ed25519, raw2)
	require.False(t, id1.Equal(id2))
}
