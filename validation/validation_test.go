package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taple-project/taple-core-go/crypto"
	"github.com/taple-project/taple-core-go/governance"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/storage"
)

type fakeReader struct{ state governance.State }

func (f fakeReader) GovernanceStateAt(identifier.Identifier, uint64) (governance.State, error) {
	return f.state, nil
}

func sampleEvent(sn uint64, govVersion uint64) model.Event {
	return model.Event{
		Proposal: model.Proposal{SN: sn, GovVersion: govVersion},
	}
}

func TestBuildProofRejectsStaleGovernanceVersion(t *testing.T) {
	meta := model.Metadata{SubjectID: "Jsubject"}
	_, err := BuildProof(sampleEvent(1, 3), meta, "", "", 5)
	require.ErrorIs(t, err, ErrGovernanceVersionTooHigh)
}

func TestBuildProofRejectsStaleGovernanceVersionScenario4(t *testing.T) {
	meta := model.Metadata{SubjectID: "Jsubject"}
	_, err := BuildProof(sampleEvent(1, 5), meta, "", "", 7)
	require.ErrorIs(t, err, ErrGovernanceVersionTooHigh)
}

func TestBuildProofAcceptsCurrentGovernanceVersion(t *testing.T) {
	meta := model.Metadata{SubjectID: "Jsubject"}
	proof, err := BuildProof(sampleEvent(1, 5), meta, "", "", 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), proof.GovernanceVersion)
}

func TestNotaryRefusesEquivocation(t *testing.T) {
	priv, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	notary := NewNotary(storage.NewMemDB(), priv)

	proofA := model.ValidationProof{SubjectID: "Jsubject", SN: 1, StateHash: "Jaaaa"}
	sigA, err := notary.Sign(proofA)
	require.NoError(t, err)

	sigAgain, err := notary.Sign(proofA)
	require.NoError(t, err)
	require.Equal(t, sigA.Bytes, sigAgain.Bytes)

	proofB := model.ValidationProof{SubjectID: "Jsubject", SN: 1, StateHash: "Jbbbb"}
	_, err = notary.Sign(proofB)
	require.ErrorIs(t, err, ErrConflictingProof)
}

func TestValidatorResolvesAtQuorum(t *testing.T) {
	priv, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	signer, _ := priv.Public().Identifier()

	state := governance.State{
		Roles:    []governance.RoleEntry{{Who: signer, SchemaID: "counter", Stage: governance.StageValidate}},
		Policies: []governance.PolicyEntry{{SchemaID: "counter", Stage: governance.StageValidate, Quorum: governance.Quorum{Kind: governance.QuorumFixed, FixedCount: 1}}},
	}
	oracle := governance.NewOracle(fakeReader{state: state})
	notary := NewNotary(storage.NewMemDB(), priv)
	validator := NewValidator(storage.NewMemDB(), oracle)

	meta := model.Metadata{SubjectID: "Jsubject", SchemaID: "counter"}
	proof := model.ValidationProof{SubjectID: "Jsubject", SN: 1, GovernanceVersion: 0}
	sig, err := notary.Sign(proof)
	require.NoError(t, err)

	reached, sigs, err := validator.RecordSignature(meta, proof, sig)
	require.NoError(t, err)
	require.True(t, reached)
	require.Len(t, sigs, 1)
}
