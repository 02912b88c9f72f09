package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taple-project/taple-core-go/crypto"
	"github.com/taple-project/taple-core-go/digest"
	"github.com/taple-project/taple-core-go/governance"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/storage"
	"github.com/taple-project/taple-core-go/store"
	"github.com/taple-project/taple-core-go/wire"
)

func sign(t *testing.T, priv crypto.PrivateKey, content any) model.Signature {
	t.Helper()
	hash := digest.MustOf(content)
	return signHash(t, priv, hash)
}

// signHash signs a value that is already a content hash (e.g. an
// EvaluationResponse's EvaluationReqHash), rather than re-hashing it.
func signHash(t *testing.T, priv crypto.PrivateKey, hash identifier.Identifier) model.Signature {
	t.Helper()
	sigBytes, err := priv.Sign([]byte(hash))
	require.NoError(t, err)
	id, err := priv.Public().Identifier()
	require.NoError(t, err)
	return model.Signature{Signer: id, ContentHash: hash, Timestamp: model.Now(), Bytes: sigBytes}
}

func genesisGovernance(t *testing.T, l *Ledger, owner crypto.PrivateKey) model.Subject {
	t.Helper()
	ownerID, err := owner.Public().Identifier()
	require.NoError(t, err)

	req := model.EventRequest{
		Kind: model.RequestCreate,
		Create: &model.CreateRequest{
			SchemaID:  "governance",
			Namespace: "",
			Name:      "root",
			PublicKey: ownerID,
		},
	}
	signed := model.Signed[model.EventRequest]{Content: req, Signature: sign(t, owner, req)}

	subject, ev, err := l.Genesis(signed)
	require.NoError(t, err)
	require.True(t, ev.Accepted)
	require.True(t, subject.IsGovernance())
	return subject
}

func TestGenesisGovernanceSubject(t *testing.T) {
	l := New(storage.NewMemDB())
	owner, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)

	gov := genesisGovernance(t, l, owner)

	state, err := l.GovernanceStateAt(gov.GovernanceID, 0)
	require.NoError(t, err)
	require.Len(t, state.Members, 1)
}

func TestGenesisDuplicateRejected(t *testing.T) {
	l := New(storage.NewMemDB())
	owner, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	genesisGovernance(t, l, owner)

	ownerID, _ := owner.Public().Identifier()
	req := model.EventRequest{
		Kind: model.RequestCreate,
		Create: &model.CreateRequest{
			SchemaID:  "governance",
			Namespace: "",
			Name:      "root",
			PublicKey: ownerID,
		},
	}
	signed := model.Signed[model.EventRequest]{Content: req, Signature: sign(t, owner, req)}
	_, _, err = l.Genesis(signed)
	require.ErrorIs(t, err, ErrSubjectExists)
}

// registerCounterSchema installs a "counter" schema on the governance
// subject's state directly (bypassing a governance Fact event, which would
// need its own quorum machinery to exercise) so Fact-application tests can
// focus on the ledger's own invariants.
func registerCounterSchema(t *testing.T, l *Ledger, gov model.Subject, signer identifier.Identifier) {
	t.Helper()
	state, err := governance.Unmarshal(gov.State)
	require.NoError(t, err)
	state.Schemas["counter"] = governance.SchemaEntry{
		SchemaID:     "counter",
		InitialState: json.RawMessage(`{"count":0}`),
		Contract:     "function execute(){}",
	}
	state.Roles = append(state.Roles,
		governance.RoleEntry{Who: signer, SchemaID: "counter", Stage: governance.StageEvaluate},
		governance.RoleEntry{Who: signer, SchemaID: "counter", Stage: governance.StageApprove},
	)
	state.Policies = append(state.Policies,
		governance.PolicyEntry{SchemaID: "counter", Stage: governance.StageEvaluate, Quorum: governance.Quorum{Kind: governance.QuorumFixed, FixedCount: 1}},
		governance.PolicyEntry{SchemaID: "counter", Stage: governance.StageApprove, Quorum: governance.Quorum{Kind: governance.QuorumFixed, FixedCount: 1}},
	)
	raw, err := state.Marshal()
	require.NoError(t, err)
	gov.State = raw

	batch := l.db.NewBatch()
	subjectRaw, err := wire.Marshal(gov)
	require.NoError(t, err)
	batch.Put(store.SubjectKey(gov.SubjectID.String()), subjectRaw)
	batch.Put(store.GovernanceSnapshotKey(gov.GovernanceID.String(), gov.SN), raw)
	require.NoError(t, batch.Write())
}

func TestApplyFactWithQuorumAndIdempotence(t *testing.T) {
	l := New(storage.NewMemDB())
	owner, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	ownerID, _ := owner.Public().Identifier()

	gov := genesisGovernance(t, l, owner)
	registerCounterSchema(t, l, gov, ownerID)

	createReq := model.EventRequest{
		Kind: model.RequestCreate,
		Create: &model.CreateRequest{
			GovernanceID: gov.GovernanceID,
			SchemaID:     "counter",
			Namespace:    "default",
			Name:         "c1",
			PublicKey:    ownerID,
		},
	}
	createSigned := model.Signed[model.EventRequest]{Content: createReq, Signature: sign(t, owner, createReq)}
	subject, _, err := l.Genesis(createSigned)
	require.NoError(t, err)

	factReq := model.EventRequest{
		Kind: model.RequestFact,
		Fact: &model.FactRequest{
			SubjectID: subject.SubjectID,
			Payload:   json.RawMessage(`{"op":"increment"}`),
		},
	}
	factSigned := model.Signed[model.EventRequest]{Content: factReq, Signature: sign(t, owner, factReq)}

	newState := json.RawMessage(`{"count":1}`)
	patch, err := wire.Diff(subject.State, newState)
	require.NoError(t, err)
	evalResp := &model.EvaluationResponse{
		Patch:             patch,
		EvaluationReqHash: digest.MustOf(factSigned),
		StateHash:         digest.MustOf(newState),
		EvaluationSuccess: true,
		ApprovalRequired:  true,
	}

	proposal := model.Proposal{
		Request:             factSigned,
		SN:                  1,
		GovVersion:           0,
		Evaluation:          evalResp,
		EvaluatorSignatures: []model.Signature{signHash(t, owner, evalResp.EvaluationReqHash)},
		ApproverSignatures:  []model.Signature{sign(t, owner, evalResp)},
	}

	core := eventCore{Proposal: proposal, PreviousHash: subject.HeadEventHash, StateHash: evalResp.StateHash}
	subjSig := sign(t, owner, core)

	ev, err := l.Apply(proposal, true, subjSig)
	require.NoError(t, err)
	require.True(t, ev.Accepted)

	head, err := l.HeadFor(subject.SubjectID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), head.SN)
	require.JSONEq(t, `{"count":1}`, string(head.State))

	// Replaying the same proposal must be idempotent, not an error.
	replayed, err := l.Apply(proposal, true, subjSig)
	require.NoError(t, err)
	require.Equal(t, ev.StateHash, replayed.StateHash)
}
