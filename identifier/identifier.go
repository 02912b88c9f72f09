// Package identifier implements TAPLE's self-describing identifier scheme:
// a one or two byte type code followed by the unpadded base64url encoding
// of the underlying key, signature, or digest material.
package identifier

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrUnknownCode     = errors.New("identifier: unknown derivator code")
	ErrWrongLength     = errors.New("identifier: length does not match derivator code")
	ErrEmptyIdentifier = errors.New("identifier: empty text")
)

// KeyDerivator names the asymmetric key scheme a KeyIdentifier was derived from.
type KeyDerivator uint8

const (
	Ed25519 KeyDerivator = iota
	Secp256k1
)

// SignatureDerivator names the signature scheme a SignatureIdentifier was derived from.
type SignatureDerivator uint8

const (
	Ed25519Sha512 SignatureDerivator = iota
	ECDSASecp256k1
)

// DigestDerivator names the hash function a DigestIdentifier wraps. Blake3-256
// is the only scheme TAPLE uses for content hashing.
type DigestDerivator uint8

const (
	Blake3256 DigestDerivator = iota
)

const (
	keyCodeEd25519   = "E"
	keyCodeSecp256k1 = "S"

	sigCodeEd25519Sha512  = "SE"
	sigCodeECDSASecp256k1 = "SS"

	digestCodeBlake3256 = "J"

	rawLenEd25519   = 32 // raw public key bytes
	rawLenSecp256k1 = 65 // uncompressed public key bytes
	rawLenSignature = 64 // fixed-size signature bytes, both schemes
	rawLenDigest    = 32 // blake3-256 output
)

var b64 = base64.RawURLEncoding

func (d KeyDerivator) code() string {
	switch d {
	case Ed25519:
		return keyCodeEd25519
	case Secp256k1:
		return keyCodeSecp256k1
	default:
		return ""
	}
}

func (d KeyDerivator) rawLen() int {
	switch d {
	case Ed25519:
		return rawLenEd25519
	case Secp256k1:
		return rawLenSecp256k1
	default:
		return 0
	}
}

// ToSignatureDerivator returns the signature scheme paired with this key scheme.
func (d KeyDerivator) ToSignatureDerivator() SignatureDerivator {
	switch d {
	case Ed25519:
		return Ed25519Sha512
	case Secp256k1:
		return ECDSASecp256k1
	default:
		return Ed25519Sha512
	}
}

func (d SignatureDerivator) code() string {
	switch d {
	case Ed25519Sha512:
		return sigCodeEd25519Sha512
	case ECDSASecp256k1:
		return sigCodeECDSASecp256k1
	default:
		return ""
	}
}

// Identifier is the canonical text form itself: <code><base64url-no-pad>.
// Representing it as a plain string (rather than a struct holding decoded
// bytes) means it Borsh/MessagePack/JSON-encodes natively everywhere it is
// embedded in a hashed or wire struct, with no custom codec required, while
// still satisfying "two identifiers are equal iff their bytes are" — the
// text form is a bijection of the underlying bytes under this scheme.
type Identifier string

// NewKeyIdentifier derives an identifier directly from raw public key bytes.
func NewKeyIdentifier(d KeyDerivator, publicKey []byte) (Identifier, error) {
	want := d.rawLen()
	if want == 0 {
		return "", fmt.Errorf("%w: key derivator %d", ErrUnknownCode, d)
	}
	if len(publicKey) != want {
		return "", fmt.Errorf("%w: expected %d raw bytes, got %d", ErrWrongLength, want, len(publicKey))
	}
	return Identifier(d.code() + b64.EncodeToString(publicKey)), nil
}

// NewSignatureIdentifier derives an identifier from raw signature bytes.
func NewSignatureIdentifier(d SignatureDerivator, sig []byte) (Identifier, error) {
	code := d.code()
	if code == "" {
		return "", fmt.Errorf("%w: signature derivator %d", ErrUnknownCode, d)
	}
	if len(sig) != rawLenSignature {
		return "", fmt.Errorf("%w: expected %d raw bytes, got %d", ErrWrongLength, rawLenSignature, len(sig))
	}
	return Identifier(code + b64.EncodeToString(sig)), nil
}

// NewDigestIdentifier wraps a Blake3-256 digest.
func NewDigestIdentifier(digest []byte) (Identifier, error) {
	if len(digest) != rawLenDigest {
		return "", fmt.Errorf("%w: expected %d raw bytes, got %d", ErrWrongLength, rawLenDigest, len(digest))
	}
	return Identifier(digestCodeBlake3256 + b64.EncodeToString(digest)), nil
}

// Empty reports whether this is the zero-value Identifier.
func (id Identifier) Empty() bool {
	return id == ""
}

// Bytes returns the raw (decoded) key/signature/digest material.
func (id Identifier) Bytes() []byte {
	s := string(id)
	if s == "" {
		return nil
	}
	if len(s) >= 2 && twoByteCode(s[:2]) {
		raw, _ := b64.DecodeString(s[2:])
		return raw
	}
	if len(s) >= 1 {
		raw, _ := b64.DecodeString(s[1:])
		return raw
	}
	return nil
}

// String renders the canonical text form.
func (id Identifier) String() string {
	return string(id)
}

// Code returns id's raw type-code prefix: one byte for a key or digest
// identifier, two for a signature identifier.
func (id Identifier) Code() string {
	s := string(id)
	if len(s) >= 2 && twoByteCode(s[:2]) {
		return s[:2]
	}
	if len(s) >= 1 {
		return s[:1]
	}
	return ""
}

// IsKey reports whether id's type code names a key identifier (Ed25519 or
// Secp256k1) rather than a signature or digest identifier — identifiers of
// otherwise equal byte length (a Blake3 digest and an Ed25519 key are both
// 32 raw bytes) are only distinguishable by this prefix, per spec: "prefix
// determines length, and parsers reject any mismatch."
func (id Identifier) IsKey() bool {
	switch id.Code() {
	case keyCodeEd25519, keyCodeSecp256k1:
		return true
	default:
		return false
	}
}

// Parse validates the code/length invariant on an already-constructed
// Identifier string, e.g. one just decoded off the wire.
func Parse(s string) (Identifier, error) {
	if s == "" {
		return "", ErrEmptyIdentifier
	}

	if len(s) >= 2 && twoByteCode(s[:2]) {
		raw, err := b64.DecodeString(s[2:])
		if err != nil {
			return "", fmt.Errorf("identifier: decode %q: %w", s, err)
		}
		if len(raw) != rawLenSignature {
			return "", fmt.Errorf("%w: %q", ErrWrongLength, s)
		}
		return Identifier(s), nil
	}

	code := s[:1]
	switch code {
	case keyCodeEd25519, keyCodeSecp256k1, digestCodeBlake3256:
		raw, err := b64.DecodeString(s[1:])
		if err != nil {
			return "", fmt.Errorf("identifier: decode %q: %w", s, err)
		}
		var want int
		switch code {
		case keyCodeEd25519:
			want = rawLenEd25519
		case keyCodeSecp256k1:
			want = rawLenSecp256k1
		case digestCodeBlake3256:
			want = rawLenDigest
		}
		if len(raw) != want {
			return "", fmt.Errorf("%w: %q", ErrWrongLength, s)
		}
		return Identifier(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCode, s)
	}
}

func twoByteCode(prefix string) bool {
	return prefix == sigCodeEd25519Sha512 || prefix == sigCodeECDSASecp256k1
}

// Equal reports byte-for-byte equality of the decoded identifier, matching
// the invariant that two identifiers are equal iff their raw bytes are.
// Since Identifier is a plain string of its canonical encoding, this is
// string equality.
func (id Identifier) Equal(other Identifier) bool {
	return id == other
}
