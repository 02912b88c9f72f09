package node

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taple-project/taple-core-go/config"
	"github.com/taple-project/taple-core-go/crypto"
	"github.com/taple-project/taple-core-go/digest"
	"github.com/taple-project/taple-core-go/governance"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/storage"
	"github.com/taple-project/taple-core-go/store"
	"github.com/taple-project/taple-core-go/wire"
)

// incrementContract mirrors the evaluator package's own test contract: it
// increments a JSON {"count": N} state by one per Fact.
const incrementContract = `
function execute(statePtr, stateLen, eventPtr, eventLen) {
  var stateBytes = [];
  for (var i = 0; i < stateLen; i++) {
    stateBytes.push(read_byte(statePtr + i));
  }
  var state = JSON.parse(String.fromCharCode.apply(null, stateBytes));
  state.count = state.count + 1;
  var out = JSON.stringify(state);
  var outPtr = allocate(out.length);
  for (var i = 0; i < out.length; i++) {
    write_byte(outPtr, i, out.charCodeAt(i));
  }
  return outPtr;
}
`

func signRequest(t *testing.T, priv crypto.PrivateKey, req model.EventRequest) model.Signed[model.EventRequest] {
	t.Helper()
	hash := digest.MustOf(req)
	sigBytes, err := priv.Sign([]byte(hash))
	require.NoError(t, err)
	signer, err := priv.Public().Identifier()
	require.NoError(t, err)
	return model.Signed[model.EventRequest]{
		Content:   req,
		Signature: model.Signature{Signer: signer, ContentHash: hash, Timestamp: model.Now(), Bytes: sigBytes},
	}
}

// registerCounterSchema installs a "counter" schema directly onto the
// governance subject's state, the way ledger's own tests bypass a
// governance Fact event to set up a schema under test — here done through
// exported store/wire pieces only, since the Ledger's db is unexported.
// Evaluate and Validate each require one signer (this node's own identity);
// no Approve role is granted, so the schema's Facts never require approval.
func registerCounterSchema(t *testing.T, n *Node, db storage.Database, gov model.Subject, signer identifier.Identifier) {
	t.Helper()
	state, err := governance.Unmarshal(gov.State)
	require.NoError(t, err)
	state.Schemas["counter"] = governance.SchemaEntry{
		SchemaID:     "counter",
		InitialState: json.RawMessage(`{"count":0}`),
		Contract:     incrementContract,
	}
	state.Roles = append(state.Roles,
		governance.RoleEntry{Who: signer, SchemaID: "counter", Stage: governance.StageEvaluate},
		governance.RoleEntry{Who: signer, SchemaID: "counter", Stage: governance.StageValidate},
	)
	state.Policies = append(state.Policies,
		governance.PolicyEntry{SchemaID: "counter", Stage: governance.StageEvaluate, Quorum: governance.Quorum{Kind: governance.QuorumFixed, FixedCount: 1}},
		governance.PolicyEntry{SchemaID: "counter", Stage: governance.StageValidate, Quorum: governance.Quorum{Kind: governance.QuorumFixed, FixedCount: 1}},
	)
	raw, err := state.Marshal()
	require.NoError(t, err)
	gov.State = raw

	subjectRaw, err := wire.Marshal(gov)
	require.NoError(t, err)
	require.NoError(t, db.Put(store.SubjectKey(gov.SubjectID.String()), subjectRaw))
	require.NoError(t, db.Put(store.GovernanceSnapshotKey(gov.GovernanceID.String(), gov.SN), raw))
}

// TestSubmitRequestDrivesFactWithoutApprovalEndToEnd exercises spec scenario
// 2: a Fact whose schema carries no approval role runs Received ->
// Evaluating -> ProposalReady -> Applied -> Validating -> ValidationQuorum
// -> Distributed without ever entering AwaitingApproval, entirely through
// SubmitRequest.
func TestSubmitRequestDrivesFactWithoutApprovalEndToEnd(t *testing.T) {
	db := storage.NewMemDB()
	identity, err := crypto.GenerateKey(identifier.Ed25519)
	require.NoError(t, err)
	signerID, err := identity.Public().Identifier()
	require.NoError(t, err)

	n, err := New(&config.Config{}, db, identity, noopTransport{}, noopSink{})
	require.NoError(t, err)

	ctx := context.Background()

	govReq := model.EventRequest{
		Kind: model.RequestCreate,
		Create: &model.CreateRequest{
			SchemaID:  "governance",
			Namespace: "",
			Name:      "root",
			PublicKey: signerID,
		},
	}
	govEvent, err := n.SubmitRequest(ctx, signRequest(t, identity, govReq))
	require.NoError(t, err)
	require.True(t, govEvent.Accepted)

	// Create requests carry no SubjectID (the subject does not exist until
	// Genesis mints it); recompute the id exactly as Genesis does.
	govSubjectID := digest.MustOf(struct {
		GovernanceID identifier.Identifier
		SchemaID     string
		Namespace    string
		Owner        identifier.Identifier
	}{govReq.Create.GovernanceID, govReq.Create.SchemaID, govReq.Create.Namespace, govReq.Create.PublicKey})

	govSubject, err := n.Ledger.HeadFor(govSubjectID)
	require.NoError(t, err)
	require.True(t, govSubject.IsGovernance())

	registerCounterSchema(t, n, db, govSubject, signerID)

	counterReq := model.EventRequest{
		Kind: model.RequestCreate,
		Create: &model.CreateRequest{
			GovernanceID: govSubject.GovernanceID,
			SchemaID:     "counter",
			Namespace:    "default",
			Name:         "c1",
			PublicKey:    signerID,
		},
	}
	counterEvent, err := n.SubmitRequest(ctx, signRequest(t, identity, counterReq))
	require.NoError(t, err)
	require.True(t, counterEvent.Accepted)

	counterSubjectID := digest.MustOf(struct {
		GovernanceID identifier.Identifier
		SchemaID     string
		Namespace    string
		Owner        identifier.Identifier
	}{counterReq.Create.GovernanceID, counterReq.Create.SchemaID, counterReq.Create.Namespace, counterReq.Create.PublicKey})

	factReq := model.EventRequest{
		Kind: model.RequestFact,
		Fact: &model.FactRequest{SubjectID: counterSubjectID, Payload: json.RawMessage(`{"op":"inc"}`)},
	}
	factEvent, err := n.SubmitRequest(ctx, signRequest(t, identity, factReq))
	require.NoError(t, err)
	require.True(t, factEvent.Accepted)
	require.False(t, factEvent.Proposal.Evaluation.ApprovalRequired)

	counter, err := n.Ledger.HeadFor(counterSubjectID)
	require.NoError(t, err)
	var state struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(counter.State, &state))
	require.Equal(t, 1, state.Count)

	proofHash, err := n.Validator.ProofHashAt(counterSubjectID, factEvent.Proposal.SN)
	require.NoError(t, err)
	require.False(t, proofHash.Empty())
}
