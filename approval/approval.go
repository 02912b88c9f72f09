// Package approval implements the Approver: it collects one signed Ok/Ko
// vote per eligible signer for a proposal awaiting approval and reports back
// once either side reaches quorum. Grounded on governance's SignersFor/
// QuorumFor/CheckQuorum (the same machinery the Ledger itself uses) and the
// teacher's pattern of a storage-backed in-flight table that survives
// restart.
package approval

import (
	"errors"
	"fmt"
	"sync"

	"github.com/taple-project/taple-core-go/crypto"
	"github.com/taple-project/taple-core-go/digest"
	"github.com/taple-project/taple-core-go/governance"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/observability/metrics"
	"github.com/taple-project/taple-core-go/storage"
	"github.com/taple-project/taple-core-go/store"
	"github.com/taple-project/taple-core-go/wire"
)

var (
	ErrConflictingProposal = errors.New("approval: vote targets a different proposal than the one already pending at this sn")
	ErrSignatureInvalid     = errors.New("approval: signature invalid")
	ErrAlreadyVoted         = errors.New("approval: signer already voted at this sn")
)

// record is the persisted state of one pending (subject, sn) approval round.
type record struct {
	ProposalHash identifier.Identifier
	OkSignatures []model.Signature
	Votes        map[string]model.Acceptance // signer text -> their vote
}

// Outcome is returned once an approval round is resolved one way or the
// other; Resolved is false while the round is still collecting votes.
type Outcome struct {
	Resolved bool
	Approved bool
	// OkSignatures back an Approved outcome; they are exactly what the
	// Ledger expects in Proposal.ApproverSignatures.
	OkSignatures []model.Signature
}

// Approver collects per-(subject,sn) approval votes to quorum.
type Approver struct {
	db     storage.Database
	oracle *governance.Oracle

	mu sync.Mutex
}

func New(db storage.Database, oracle *governance.Oracle) *Approver {
	return &Approver{db: db, oracle: oracle}
}

func roundKey(subjectID string, sn uint64) string {
	return subjectID + ":" + store.SN(sn)
}

func (a *Approver) load(key string) (*record, error) {
	raw, err := a.db.Get(store.RequestKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return &record{Votes: map[string]model.Acceptance{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := wire.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.Votes == nil {
		rec.Votes = map[string]model.Acceptance{}
	}
	return &rec, nil
}

func (a *Approver) save(key string, rec *record) error {
	raw, err := wire.Marshal(rec)
	if err != nil {
		return err
	}
	return a.db.Put(store.RequestKey(key), raw)
}

// KoContentHash is what a Ko vote signs: a value distinguishable from the
// proposal hash itself, so a Ko signature can never be mistaken for (or
// satisfy quorum as) an Ok signature at the Ledger.
func KoContentHash(proposalHash identifier.Identifier) identifier.Identifier {
	return digest.MustOf(struct {
		ProposalHash identifier.Identifier
		Ko           bool
	}{proposalHash, true})
}

// RecordVote ingests one signer's vote on subjectID's proposal at sn. vote
// is Ok or Ko; sig must be over proposalHash (Ok) or KoContentHash(proposalHash)
// (Ko). Returns the round's Outcome: Resolved stays false until one side
// reaches quorum.
func (a *Approver) RecordVote(meta model.Metadata, govVersion, sn uint64, proposalHash identifier.Identifier, vote model.Acceptance, sig model.Signature) (Outcome, error) {
	expected := proposalHash
	if vote == model.AcceptanceKo {
		expected = KoContentHash(proposalHash)
	}
	if !sig.ContentHash.Equal(expected) {
		return Outcome{}, fmt.Errorf("%w: unexpected content hash", ErrSignatureInvalid)
	}
	pub, err := crypto.PublicKeyFromIdentifier(sig.Signer)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !pub.Verify([]byte(sig.ContentHash), sig.Bytes) {
		return Outcome{}, ErrSignatureInvalid
	}

	key := roundKey(meta.SubjectID.String(), sn)

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.load(key)
	if err != nil {
		return Outcome{}, err
	}
	if rec.ProposalHash.Empty() {
		rec.ProposalHash = proposalHash
	} else if !rec.ProposalHash.Equal(proposalHash) {
		return Outcome{}, ErrConflictingProposal
	}
	if _, voted := rec.Votes[sig.Signer.String()]; voted {
		return Outcome{}, ErrAlreadyVoted
	}
	rec.Votes[sig.Signer.String()] = vote
	if vote == model.AcceptanceOk {
		rec.OkSignatures = append(rec.OkSignatures, sig)
	}
	if err := a.save(key, rec); err != nil {
		return Outcome{}, err
	}

	signers, err := a.oracle.SignersFor(meta.GovernanceID, govVersion, meta.SchemaID, meta.Namespace, governance.StageApprove)
	if err != nil {
		return Outcome{}, err
	}
	quorum, err := a.oracle.QuorumFor(meta.GovernanceID, govVersion, meta.SchemaID, governance.StageApprove)
	if err != nil {
		return Outcome{}, err
	}
	threshold := quorum.Threshold(len(signers))

	eligible := map[string]struct{}{}
	for _, s := range signers {
		eligible[s.String()] = struct{}{}
	}

	okCount, koCount := 0, 0
	for signer, v := range rec.Votes {
		if _, ok := eligible[signer]; !ok {
			continue
		}
		if v == model.AcceptanceOk {
			okCount++
		} else {
			koCount++
		}
	}

	if okCount >= threshold {
		metrics.QuorumRounds.WithLabelValues("approve", "met").Inc()
		return Outcome{Resolved: true, Approved: true, OkSignatures: rec.OkSignatures}, nil
	}
	// Ko reaches quorum once too few remaining signers could still push Ok
	// over threshold.
	remaining := len(signers) - okCount - koCount
	if okCount+remaining < threshold {
		metrics.QuorumRounds.WithLabelValues("approve", "rejected").Inc()
		return Outcome{Resolved: true, Approved: false}, nil
	}
	return Outcome{Resolved: false}, nil
}
