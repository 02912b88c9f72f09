package approval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taple-project/taple-core-go/crypto"
	"github.com/taple-project/taple-core-go/digest"
	"github.com/taple-project/taple-core-go/governance"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/storage"
)

type fakeReader struct{ state governance.State }

func (f fakeReader) GovernanceStateAt(identifier.Identifier, uint64) (governance.State, error) {
	return f.state, nil
}

func TestApproverResolvesOkAtQuorum(t *testing.T) {
	owner, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	ownerID, _ := owner.Public().Identifier()

	state := governance.State{
		Roles: []governance.RoleEntry{{Who: ownerID, SchemaID: "counter", Stage: governance.StageApprove}},
		Policies: []governance.PolicyEntry{
			{SchemaID: "counter", Stage: governance.StageApprove, Quorum: governance.Quorum{Kind: governance.QuorumFixed, FixedCount: 1}},
		},
	}
	oracle := governance.NewOracle(fakeReader{state: state})
	approver := New(storage.NewMemDB(), oracle)

	meta := model.Metadata{SubjectID: "Jdeadbeef", SchemaID: "counter"}
	proposalHash := digest.MustOf("some-evaluation")

	sigBytes, err := owner.Sign([]byte(proposalHash))
	require.NoError(t, err)
	sig := model.Signature{Signer: ownerID, ContentHash: proposalHash, Timestamp: model.Now(), Bytes: sigBytes}

	outcome, err := approver.RecordVote(meta, 0, 1, proposalHash, model.AcceptanceOk, sig)
	require.NoError(t, err)
	require.True(t, outcome.Resolved)
	require.True(t, outcome.Approved)
	require.Len(t, outcome.OkSignatures, 1)
}

func TestApproverRejectsConflictingProposal(t *testing.T) {
	owner, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	ownerID, _ := owner.Public().Identifier()

	state := governance.State{
		Roles: []governance.RoleEntry{
			{Who: ownerID, SchemaID: "counter", Stage: governance.StageApprove},
		},
		Policies: []governance.PolicyEntry{
			{SchemaID: "counter", Stage: governance.StageApprove, Quorum: governance.Quorum{Kind: governance.QuorumFixed, FixedCount: 2}},
		},
	}
	oracle := governance.NewOracle(fakeReader{state: state})
	approver := New(storage.NewMemDB(), oracle)
	meta := model.Metadata{SubjectID: "Jdeadbeef", SchemaID: "counter"}

	hashA := digest.MustOf("a")
	sigBytesA, _ := owner.Sign([]byte(hashA))
	sigA := model.Signature{Signer: ownerID, ContentHash: hashA, Timestamp: model.Now(), Bytes: sigBytesA}
	_, err = approver.RecordVote(meta, 0, 1, hashA, model.AcceptanceOk, sigA)
	require.NoError(t, err)

	other, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	otherID, _ := other.Public().Identifier()
	hashB := digest.MustOf("b")
	sigBytesB, _ := other.Sign([]byte(hashB))
	sigB := model.Signature{Signer: otherID, ContentHash: hashB, Timestamp: model.Now(), Bytes: sigBytesB}
	_, err = approver.RecordVote(meta, 0, 1, hashB, model.AcceptanceOk, sigB)
	require.ErrorIs(t, err, ErrConflictingProposal)
}
