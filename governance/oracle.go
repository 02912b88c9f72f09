package governance

import (
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/model"
)

var (
	ErrUnknownGovernance = errors.New("governance: unknown governance subject")
	ErrUnknownSchema     = errors.New("governance: schema not found")
	ErrSchemaInvalid     = errors.New("governance: value rejected by schema")
)

// HistoryReader resolves a governance subject's state as of a specific
// version (its own sn at the time). The Oracle never mutates the ledger; it
// only reads through this narrow interface, so it can be constructed
// independent of any running Ledger actor (e.g. inside tests).
type HistoryReader interface {
	GovernanceStateAt(governanceID identifier.Identifier, version uint64) (State, error)
}

// cacheKey identifies one (governance, version) query result. Per spec this
// cache never needs invalidation: every consumer names the exact version it
// wants, and a governance subject's historical state at a given sn never
// changes once recorded.
type cacheKey struct {
	governanceID identifier.Identifier
	version      uint64
}

// Oracle answers role, quorum, and schema questions by interpreting a
// governance subject's state at a caller-specified version.
type Oracle struct {
	reader HistoryReader

	mu    sync.Mutex
	cache map[cacheKey]State
}

func NewOracle(reader HistoryReader) *Oracle {
	return &Oracle{reader: reader, cache: map[cacheKey]State{}}
}

func (o *Oracle) stateAt(governanceID identifier.Identifier, version uint64) (State, error) {
	key := cacheKey{governanceID: governanceID, version: version}

	o.mu.Lock()
	if s, ok := o.cache[key]; ok {
		o.mu.Unlock()
		return s, nil
	}
	o.mu.Unlock()

	s, err := o.reader.GovernanceStateAt(governanceID, version)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s@%d: %v", ErrUnknownGovernance, governanceID, version, err)
	}

	o.mu.Lock()
	o.cache[key] = s
	o.mu.Unlock()
	return s, nil
}

// IsGovernance reports whether subjectID names a governance subject: the
// subject whose own id is its governance id.
func IsGovernance(subjectID, governanceID identifier.Identifier) bool {
	return subjectID.Equal(governanceID)
}

// SignersFor returns the distinct key ids entitled to act in stage for
// (schemaID, namespace) at the given governance version.
func (o *Oracle) SignersFor(governanceID identifier.Identifier, version uint64, schemaID, namespace string, stage Stage) ([]identifier.Identifier, error) {
	state, err := o.stateAt(governanceID, version)
	if err != nil {
		return nil, err
	}

	best := -1
	var winners []RoleEntry
	for _, role := range state.Roles {
		if !role.matches(schemaID, namespace, stage) {
			continue
		}
		score := role.specificity()
		switch {
		case score > best:
			best = score
			winners = []RoleEntry{role}
		case score == best:
			winners = append(winners, role)
		}
	}

	out := make([]identifier.Identifier, 0, len(winners))
	for _, w := range winners {
		out = append(out, w.Who)
	}
	return out, nil
}

// QuorumFor returns the quorum policy for (schemaID, stage) at version,
// choosing the first declared matching policy (policies are schema-scoped,
// so specificity ties resolve to declaration order as required by spec).
func (o *Oracle) QuorumFor(governanceID identifier.Identifier, version uint64, schemaID string, stage Stage) (Quorum, error) {
	state, err := o.stateAt(governanceID, version)
	if err != nil {
		return Quorum{}, err
	}
	for _, p := range state.Policies {
		if p.SchemaID == schemaID && p.Stage == stage {
			return p.Quorum, nil
		}
	}
	for _, p := range state.Policies {
		if p.SchemaID == "" && p.Stage == stage {
			return p.Quorum, nil
		}
	}
	return Quorum{Kind: QuorumMajority}, nil
}

// CheckQuorum reports whether the (already duplicate-filtered) signatures
// in set satisfy quorum against the eligible signer set.
func (o *Oracle) CheckQuorum(signers []identifier.Identifier, set *model.SignatureSet, quorum Quorum) bool {
	eligible := map[identifier.Identifier]struct{}{}
	for _, s := range signers {
		eligible[s] = struct{}{}
	}

	count := 0
	for _, sig := range set.Slice() {
		if _, ok := eligible[sig.Signer]; ok {
			count++
		}
	}
	return count >= quorum.Threshold(len(signers))
}

// Schema returns the compiled schema entry plus a ready-to-use JSON Schema
// validator for schemaID at version.
func (o *Oracle) Schema(governanceID identifier.Identifier, version uint64, schemaID string) (SchemaEntry, *jsonschema.Schema, error) {
	state, err := o.stateAt(governanceID, version)
	if err != nil {
		return SchemaEntry{}, nil, err
	}
	entry, ok := state.Schemas[schemaID]
	if !ok {
		return SchemaEntry{}, nil, fmt.Errorf("%w: %s", ErrUnknownSchema, schemaID)
	}
	if len(entry.JSONSchema) == 0 {
		return entry, nil, nil
	}

	compiler := jsonschema.NewCompiler()
	res := fmt.Sprintf("%s-%s.json", governanceID, schemaID)
	if err := compiler.AddResource(res, jsonschemaReader(entry.JSONSchema)); err != nil {
		return SchemaEntry{}, nil, err
	}
	compiled, err := compiler.Compile(res)
	if err != nil {
		return SchemaEntry{}, nil, err
	}
	return entry, compiled, nil
}
