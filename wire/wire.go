// Package wire centralizes the two encodings the external interfaces name:
// MessagePack for inter-node messages and for values persisted in the
// key-value store, and RFC 6902 JSON-Patch for state diffs. Canonical
// Borsh encoding for hash inputs lives next to the types it hashes (see
// package digest) rather than here, since each hashed struct's field order
// is part of its own definition.
package wire

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"
	gojsonpatch "gomodules.xyz/jsonpatch/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes v as MessagePack, the wire format for both inter-node
// messages and stored values.
func Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes MessagePack bytes into v.
func Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// Diff computes the RFC 6902 JSON-Patch operations that transform before
// into after. Both arguments must be JSON-encoded documents.
func Diff(before, after []byte) ([]byte, error) {
	ops, err := gojsonpatch.CreatePatch(before, after)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ops)
}

// Apply applies an RFC 6902 patch (as produced by Diff) to a JSON document.
func Apply(doc, patch []byte) ([]byte, error) {
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, err
	}
	return p.Apply(doc)
}
