package governance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func jsonschemaReader(raw json.RawMessage) io.Reader {
	return bytes.NewReader(raw)
}

// ValidateAgainst validates a JSON document against a compiled schema,
// wrapping jsonschema's validation error with ErrSchemaInvalid so callers
// can match it with errors.Is.
func ValidateAgainst(schema *jsonschema.Schema, doc json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return nil
}
