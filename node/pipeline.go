package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/taple-project/taple-core-go/digest"
	"github.com/taple-project/taple-core-go/governance"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/ledger"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/storage"
	"github.com/taple-project/taple-core-go/validation"
)

// signHash returns this node's Signature over hash, following the
// convention every actor in this pipeline shares: ContentHash is the
// already-computed digest, and the signed bytes are ContentHash's raw
// text form rather than a re-hash of it.
func (n *Node) signHash(hash identifier.Identifier) (model.Signature, error) {
	sigBytes, err := n.Identity.Sign([]byte(hash))
	if err != nil {
		return model.Signature{}, err
	}
	signer, err := n.Identity.Public().Identifier()
	if err != nil {
		return model.Signature{}, err
	}
	return model.Signature{Signer: signer, ContentHash: hash, Timestamp: model.Now(), Bytes: sigBytes}, nil
}

// SubmitRequest drives req through the full per-request lifecycle: Received
// -> Evaluating -> AwaitingApproval? -> ProposalReady -> Applied ->
// Validating -> ValidationQuorum -> Distributed. This node plays every
// actor role for its own proposals, so each quorum check here only ever
// needs this node's own signature, as for a single-participant governance;
// a multi-node deployment drives the same Evaluator/Approver/Ledger/
// Notary/Validator methods from messages arriving over Inbox instead of
// from this method directly.
func (n *Node) SubmitRequest(ctx context.Context, req model.Signed[model.EventRequest]) (model.Event, error) {
	if req.Content.Kind == model.RequestCreate {
		subject, ev, err := n.Ledger.Genesis(req)
		if err != nil {
			return model.Event{}, fmt.Errorf("node: genesis: %w", err)
		}
		// Genesis mints a subject with no governance history behind it yet
		// (a self-governing Create's own DefaultGenesisState ships with no
		// roles at all), so there is no Validate quorum to gather for this
		// event; it is distributed on the strength of the owner's signature
		// Genesis already verified.
		if err := n.Distributor.Push(ctx, subject.SubjectID, ev.Proposal.SN); err != nil {
			return model.Event{}, fmt.Errorf("node: distribute: %w", err)
		}
		return ev, nil
	}
	return n.submitToExistingSubject(ctx, req)
}

// submitToExistingSubject carries Evaluating through Applied for a Fact,
// Transfer, or EOL request against a subject that already exists.
func (n *Node) submitToExistingSubject(ctx context.Context, req model.Signed[model.EventRequest]) (model.Event, error) {
	subjectID := req.Content.SubjectID()
	if subjectID.Empty() {
		return model.Event{}, fmt.Errorf("node: request names no subject")
	}

	subject, err := n.Ledger.HeadFor(subjectID)
	if err != nil {
		return model.Event{}, fmt.Errorf("node: load subject: %w", err)
	}
	meta := subject.Metadata()

	govVersion, err := n.Ledger.ExpectedGovernanceVersion(subjectID)
	if err != nil {
		return model.Event{}, fmt.Errorf("node: governance version: %w", err)
	}

	proposal := model.Proposal{Request: req, SN: subject.SN + 1, GovVersion: govVersion}
	approved := true

	if req.Content.Kind == model.RequestFact {
		entry, _, err := n.Oracle.Schema(subject.GovernanceID, govVersion, subject.SchemaID)
		if err != nil {
			return model.Event{}, fmt.Errorf("node: resolve schema: %w", err)
		}
		approveSigners, err := n.Oracle.SignersFor(subject.GovernanceID, govVersion, subject.SchemaID, subject.Namespace, governance.StageApprove)
		if err != nil {
			return model.Event{}, fmt.Errorf("node: resolve approvers: %w", err)
		}
		approvalRequired := len(approveSigners) > 0

		evalReq := model.EvaluationRequest{
			GovernanceID: subject.GovernanceID,
			SchemaID:     subject.SchemaID,
			Owner:        subject.Owner,
			Namespace:    subject.Namespace,
			PriorState:   subject.State,
			Request:      req,
			GovVersion:   govVersion,
		}
		resp, err := n.Evaluator.Evaluate(entry.Contract, evalReq, approvalRequired)
		if err != nil {
			return model.Event{}, fmt.Errorf("node: evaluate: %w", err)
		}
		proposal.Evaluation = &resp
		proposal.Patch = resp.Patch

		evalSig, err := n.signHash(resp.EvaluationReqHash)
		if err != nil {
			return model.Event{}, err
		}
		proposal.EvaluatorSignatures = []model.Signature{evalSig}

		// AwaitingApproval?
		if approvalRequired {
			proposalHash := digest.MustOf(proposal.Evaluation)
			voteSig, err := n.signHash(proposalHash)
			if err != nil {
				return model.Event{}, err
			}
			outcome, err := n.Approver.RecordVote(meta, govVersion, proposal.SN, proposalHash, model.AcceptanceOk, voteSig)
			if err != nil {
				return model.Event{}, fmt.Errorf("node: approve: %w", err)
			}
			if !outcome.Resolved {
				return model.Event{}, fmt.Errorf("node: approval round not resolved by this node's own vote alone")
			}
			approved = outcome.Approved
			proposal.ApproverSignatures = outcome.OkSignatures
		}
	}

	// ProposalReady: the subject signature commits to the proposal, the
	// chain's current head, and the state hash the proposal resolves to.
	stateHash := digest.MustOf(subject.State)
	if proposal.Evaluation != nil {
		stateHash = proposal.Evaluation.StateHash
	}
	coreHash := ledger.EventCoreHash(proposal, subject.HeadEventHash, stateHash)
	subjectSig, err := n.signHash(coreHash)
	if err != nil {
		return model.Event{}, err
	}

	// Applied
	ev, err := n.Ledger.Apply(proposal, approved, subjectSig)
	if err != nil {
		return model.Event{}, fmt.Errorf("node: apply: %w", err)
	}

	if err := n.validateAndDistribute(ctx, subjectID, ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// validateAndDistribute carries an already-applied event through Validating,
// ValidationQuorum, and Distributed.
func (n *Node) validateAndDistribute(ctx context.Context, subjectID identifier.Identifier, ev model.Event) error {
	subject, err := n.Ledger.HeadFor(subjectID)
	if err != nil {
		return fmt.Errorf("node: load subject: %w", err)
	}
	meta := subject.Metadata()

	var prevDigest identifier.Identifier
	if ev.Proposal.SN > 0 {
		prevDigest, err = n.Validator.ProofHashAt(subjectID, ev.Proposal.SN-1)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("node: prior proof: %w", err)
		}
	}

	localGovVersion, err := n.Ledger.ExpectedGovernanceVersion(subjectID)
	if err != nil {
		return fmt.Errorf("node: governance version: %w", err)
	}

	genesisEvent, err := n.Ledger.GetEvent(subjectID, 0)
	if err != nil {
		return fmt.Errorf("node: genesis event: %w", err)
	}
	genesisOwner := genesisEvent.Proposal.Request.Content.Create.PublicKey

	proof, err := validation.BuildProof(ev, meta, genesisOwner, prevDigest, localGovVersion)
	if err != nil {
		return fmt.Errorf("node: build proof: %w", err)
	}

	notarySig, err := n.Notary.Sign(proof)
	if err != nil {
		return fmt.Errorf("node: notarize: %w", err)
	}

	quorumReached, _, err := n.Validator.RecordSignature(meta, proof, notarySig)
	if err != nil {
		return fmt.Errorf("node: validate: %w", err)
	}
	if !quorumReached {
		return fmt.Errorf("node: validation quorum not resolved by this node's own signature alone")
	}

	return n.Distributor.Push(ctx, subjectID, ev.Proposal.SN)
}
