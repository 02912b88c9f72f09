// Package validation implements the Validator/Notary role: building the
// ValidationProof for a newly-applied event, signing at most one proof per
// (subject, sn) to prevent equivocation, and tallying validator signatures
// to quorum. Notary and Validator are one role here, as in the source this
// was distilled from. Grounded on approval's quorum-tally shape and the
// teacher's single-vote-per-height guard in its consensus package.
package validation

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
	// ErrGovernanceVersionTooHigh means the proof declares a governance
	// version older than this validator's own head; the caller must rebuild
	// the proof against the current version and resubmit rather than have
	// the validator sign a regression.
	ErrGovernanceVersionTooHigh = errors.New("validation: event targets a governance version older than the local head")
	ErrConflictingProof         = errors.New("validation: a different proof was already signed at this sn")
	ErrSignatureInvalid         = errors.New("validation: signature invalid")
)

// BuildProof constructs the ValidationProof for event, given the subject's
// addressing metadata, its genesis owner, and the digest of the previous
// sn's proof (empty for sn 0). Returns ErrGovernanceVersionTooHigh if the
// event's governance version is older than this validator's own head: a
// validator never signs a proof that would regress the governance version
// it has already moved past.
func BuildProof(event model.Event, meta model.Metadata, genesisOwner identifier.Identifier, prevProofDigest identifier.Identifier, localGovVersion uint64) (model.ValidationProof, error) {
	if localGovVersion > event.Proposal.GovVersion {
		metrics.GovernanceVersionTooHigh.Inc()
		return model.ValidationProof{}, ErrGovernanceVersionTooHigh
	}
	return model.ValidationProof{
		SubjectID:         meta.SubjectID,
		SN:                event.Proposal.SN,
		StateHash:         event.StateHash,
		PrevProofDigest:   prevProofDigest,
		GovernanceVersion: event.Proposal.GovVersion,
		OwnerKey:          meta.Owner,
		Namespace:         meta.Namespace,
		SchemaID:          meta.SchemaID,
		GenesisOwner:      genesisOwner,
		EventHash:         digest.MustOf(event),
	}, nil
}

type lastSigned struct {
	SN        uint64
	ProofHash identifier.Identifier
	Signature model.Signature
}

// Notary signs at most one ValidationProof per (subject, sn), persisting
// its choice so a restart cannot be tricked into signing a conflicting
// proof for an sn it already committed to.
type Notary struct {
	db   storage.Database
	priv crypto.PrivateKey
	mu   sync.Mutex
}

func NewNotary(db storage.Database, priv crypto.PrivateKey) *Notary {
	return &Notary{db: db, priv: priv}
}

// Sign returns this node's signature over proof, refusing to re-sign a
// different proof already committed at the same sn (equivocation) while
// idempotently returning the prior signature for a replayed identical proof.
// Only the most recently signed sn is stored per subject, so a proof for a
// lower sn is refused with ErrConflictingProof.
func (n *Notary) Sign(proof model.ValidationProof) (model.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := store.NotaryKey(proof.SubjectID.String())
	raw, err := n.db.Get(key)
	var last lastSigned
	if err == nil {
		if err := wire.Unmarshal(raw, &last); err != nil {
			return model.Signature{}, err
		}
		if proof.SN == last.SN {
			if !digest.MustOf(proof).Equal(last.ProofHash) {
				return model.Signature{}, ErrConflictingProof
			}
			return last.Signature, nil
		}
		if proof.SN < last.SN {
			return model.Signature{}, fmt.Errorf("%w: sn %d is below the last signed sn %d", ErrConflictingProof, proof.SN, last.SN)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.Signature{}, err
	}

	hash := digest.MustOf(proof)
	sigBytes, err := n.priv.Sign([]byte(hash))
	if err != nil {
		return model.Signature{}, err
	}
	signer, err := n.priv.Public().Identifier()
	if err != nil {
		return model.Signature{}, err
	}
	sig := model.Signature{Signer: signer, ContentHash: hash, Timestamp: model.Now(), Bytes: sigBytes}

	last = lastSigned{SN: proof.SN, ProofHash: hash, Signature: sig}
	out, err := wire.Marshal(last)
	if err != nil {
		return model.Signature{}, err
	}
	if err := n.db.Put(key, out); err != nil {
		return model.Signature{}, err
	}
	return sig, nil
}

// record is the persisted tally of validator signatures collected so far
// for one (subject, sn) proof.
type record struct {
	ProofHash  identifier.Identifier
	Signatures []model.Signature
}

// Validator tallies validator signatures over a proof to quorum.
type Validator struct {
	db     storage.Database
	oracle *governance.Oracle
	mu     sync.Mutex
}

func NewValidator(db storage.Database, oracle *governance.Oracle) *Validator {
	return &Validator{db: db, oracle: oracle}
}

// ProofHashAt returns the digest of the ValidationProof already committed
// for (subjectID, sn), for chaining PrevProofDigest into the next proof.
// Returns storage.ErrNotFound if no proof has been recorded at sn yet.
func (v *Validator) ProofHashAt(subjectID identifier.Identifier, sn uint64) (identifier.Identifier, error) {
	key := store.LCEValidationProofsKey(subjectID.String() + ":" + store.SN(sn))
	raw, err := v.db.Get(key)
	if err != nil {
		return "", err
	}
	var rec record
	if err := wire.Unmarshal(raw, &rec); err != nil {
		return "", err
	}
	return rec.ProofHash, nil
}

// RecordSignature ingests one validator's signature over proof, returning
// the accumulated signature set once quorum (StageValidate) is reached.
func (v *Validator) RecordSignature(meta model.Metadata, proof model.ValidationProof, sig model.Signature) (quorumReached bool, signatures []model.Signature, err error) {
	proofHash := digest.MustOf(proof)
	if !sig.ContentHash.Equal(proofHash) {
		metrics.ValidationRejections.WithLabelValues("content_mismatch").Inc()
		return false, nil, fmt.Errorf("%w: unexpected content hash", ErrSignatureInvalid)
	}
	pub, err := crypto.PublicKeyFromIdentifier(sig.Signer)
	if err != nil {
		metrics.ValidationRejections.WithLabelValues("bad_signer").Inc()
		return false, nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !pub.Verify([]byte(sig.ContentHash), sig.Bytes) {
		metrics.ValidationRejections.WithLabelValues("bad_signature").Inc()
		return false, nil, ErrSignatureInvalid
	}

	key := store.LCEValidationProofsKey(meta.SubjectID.String() + ":" + store.SN(proof.SN))

	v.mu.Lock()
	defer v.mu.Unlock()

	var rec record
	raw, err := v.db.Get(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = record{ProofHash: proofHash}
	case err != nil:
		return false, nil, err
	default:
		if err := wire.Unmarshal(raw, &rec); err != nil {
			return false, nil, err
		}
		if !rec.ProofHash.Equal(proofHash) {
			return false, nil, ErrConflictingProof
		}
	}

	set := model.NewSignatureSet()
	for _, s := range rec.Signatures {
		set.Add(s)
	}
	set.Add(sig)
	rec.Signatures = set.Slice()

	out, err := wire.Marshal(rec)
	if err != nil {
		return false, nil, err
	}
	if err := v.db.Put(key, out); err != nil {
		return false, nil, err
	}

	signers, err := v.oracle.SignersFor(meta.GovernanceID, proof.GovernanceVersion, meta.SchemaID, meta.Namespace, governance.StageValidate)
	if err != nil {
		return false, nil, err
	}
	quorum, err := v.oracle.QuorumFor(meta.GovernanceID, proof.GovernanceVersion, meta.SchemaID, governance.StageValidate)
	if err != nil {
		return false, nil, err
	}
	if v.oracle.CheckQuorum(signers, set, quorum) {
		return true, rec.Signatures, nil
	}
	return false, nil, nil
}
