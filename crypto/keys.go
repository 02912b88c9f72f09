package crypto

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"lukechampine.com/blake3"

	"github.com/taple-project/taple-core-go/identifier"
)

var ErrUnsupportedDerivator = errors.New("crypto: unsupported key derivator")

// PublicKey is a verifying key paired with the scheme it was derived from.
type PublicKey interface {
	Derivator() identifier.KeyDerivator
	// Raw returns the exact byte form fed to identifier derivation (32 bytes
	// for Ed25519, 65-byte uncompressed point for Secp256k1).
	Raw() []byte
	Identifier() (identifier.Identifier, error)
	Verify(message, sig []byte) bool
}

// PrivateKey is a signing key. Sign always returns a fixed 64-byte signature
// (R||S for Secp256k1, the standard 64-byte form for Ed25519) so both schemes
// share one SignatureIdentifier length, per the identifier scheme's invariant.
type PrivateKey interface {
	Derivator() identifier.KeyDerivator
	Public() PublicKey
	Sign(message []byte) ([]byte, error)
	// Bytes returns the raw private scalar/seed for keystore persistence.
	Bytes() []byte
}

// GenerateKey creates a fresh key pair for the given derivator.
func GenerateKey(d identifier.KeyDerivator) (PrivateKey, error) {
	switch d {
	case identifier.Ed25519:
		_, priv, err := stded25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return ed25519Key{priv: priv}, nil
	case identifier.Secp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		return secp256k1Key{priv: priv}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDerivator, d)
	}
}

func blake3Sum(b []byte) []byte {
	sum := blake3.Sum256(b)
	return sum[:]
}

// --- Ed25519 ---

type ed25519Key struct {
	priv stded25519.PrivateKey
}

func (k ed25519Key) Derivator() identifier.KeyDerivator { return identifier.Ed25519 }

func (k ed25519Key) Bytes() []byte { return append([]byte(nil), k.priv.Seed()...) }

func (k ed25519Key) Public() PublicKey {
	pub, _ := k.priv.Public().(stded25519.PublicKey)
	return ed25519PublicKey{pub: pub}
}

func (k ed25519Key) Sign(message []byte) ([]byte, error) {
	return stded25519.Sign(k.priv, message), nil
}

// PrivateKeyFromSeed reconstructs an Ed25519 signing key from a 32-byte seed.
func PrivateKeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != stded25519.SeedSize {
		return nil, fmt.Errorf("crypto: ed25519 seed must be %d bytes, got %d", stded25519.SeedSize, len(seed))
	}
	return ed25519Key{priv: stded25519.NewKeyFromSeed(seed)}, nil
}

type ed25519PublicKey struct {
	pub stded25519.PublicKey
}

func (k ed25519PublicKey) Derivator() identifier.KeyDerivator { return identifier.Ed25519 }
func (k ed25519PublicKey) Raw() []byte                        { return append([]byte(nil), k.pub...) }
func (k ed25519PublicKey) Identifier() (identifier.Identifier, error) {
	return identifier.NewKeyIdentifier(identifier.Ed25519, k.Raw())
}
func (k ed25519PublicKey) Verify(message, sig []byte) bool {
	return stded25519.Verify(k.pub, message, sig)
}

// --- Secp256k1 ---

type secp256k1Key struct {
	priv *secp256k1.PrivateKey
}

func (k secp256k1Key) Derivator() identifier.KeyDerivator { return identifier.Secp256k1 }

func (k secp256k1Key) Bytes() []byte { return k.priv.Serialize() }

func (k secp256k1Key) Public() PublicKey {
	return secp256k1PublicKey{pub: k.priv.PubKey()}
}

// Sign produces a fixed 64-byte R||S signature, dropping the recovery byte
// that SignCompact prepends.
func (k secp256k1Key) Sign(message []byte) ([]byte, error) {
	hash := blake3Sum(message)
	compact := ecdsa.SignCompact(k.priv, hash, false)
	if len(compact) != 65 {
		return nil, fmt.Errorf("crypto: unexpected compact signature length %d", len(compact))
	}
	return compact[1:], nil
}

// PrivateKeyFromBytes reconstructs a Secp256k1 signing key from its 32-byte scalar.
func PrivateKeyFromBytes(b []byte) (PrivateKey, error) {
	priv := secp256k1.PrivKeyFromBytes(b)
	if priv == nil {
		return nil, errors.New("crypto: invalid secp256k1 private key")
	}
	return secp256k1Key{priv: priv}, nil
}

type secp256k1PublicKey struct {
	pub *secp256k1.PublicKey
}

func (k secp256k1PublicKey) Derivator() identifier.KeyDerivator { return identifier.Secp256k1 }

func (k secp256k1PublicKey) Raw() []byte {
	return k.pub.SerializeUncompressed()
}

func (k secp256k1PublicKey) Identifier() (identifier.Identifier, error) {
	return identifier.NewKeyIdentifier(identifier.Secp256k1, k.Raw())
}

// Verify recovers the public key for both possible recovery ids from the 64-byte
// R||S signature and accepts if either recovered key matches this public key.
func (k secp256k1PublicKey) Verify(message, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	hash := blake3Sum(message)
	want := k.pub.SerializeCompressed()
	for _, recID := range []byte{27, 28} {
		compact := append([]byte{recID}, sig...)
		recovered, _, err := ecdsa.RecoverCompact(compact, hash)
		if err != nil {
			continue
		}
		if bytesEqual(recovered.SerializeCompressed(), want) {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PublicKeyFromIdentifier reconstructs a verifiable PublicKey from its
// persisted Identifier form. The code prefix must name a key derivator; the
// scheme is then chosen by raw byte length (32 for Ed25519, 65 for
// Secp256k1).
func PublicKeyFromIdentifier(id identifier.Identifier) (PublicKey, error) {
	if id.Empty() {
		return nil, fmt.Errorf("crypto: empty identifier")
	}
	if !id.IsKey() {
		return nil, fmt.Errorf("crypto: identifier %q is not a key identifier", id)
	}
	raw := id.Bytes()
	switch {
	case len(raw) == 32:
		return ed25519PublicKey{pub: stded25519.PublicKey(raw)}, nil
	case len(raw) == 65:
		pub, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("crypto: parse secp256k1 public key: %w", err)
		}
		return secp256k1PublicKey{pub: pub}, nil
	default:
		return nil, fmt.Errorf("crypto: identifier %q is not a recognized public key", id)
	}
}
