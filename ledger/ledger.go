// Package ledger implements the Ledger actor: the sole writer of the
// per-subject event chains, final arbiter of signature and quorum
// correctness, and the governance.HistoryReader backing the Oracle.
// Grounded on the teacher's storage-backed state-machine packages, adapted
// from account/balance bookkeeping to subject/event chain bookkeeping.
package ledger

import (
	"encoding/json"
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

// Ledger owns the shared storage.Database and is, itself, the
// governance.HistoryReader the Oracle reads through: a governance subject's
// historical states are just snapshots the Ledger wrote as it applied that
// subject's own events.
type Ledger struct {
	db     storage.Database
	oracle *governance.Oracle

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires a Ledger over db and its own Oracle.
func New(db storage.Database) *Ledger {
	l := &Ledger{db: db, locks: map[string]*sync.Mutex{}}
	l.oracle = governance.NewOracle(l)
	return l
}

// Oracle returns the Governance Oracle backed by this Ledger's history.
func (l *Ledger) Oracle() *governance.Oracle { return l.oracle }

func (l *Ledger) subjectLock(subjectID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[subjectID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[subjectID] = lock
	}
	return lock
}

// eventCore is exactly what a subject signature commits to: everything
// about the event except the signature itself.
type eventCore struct {
	Proposal     model.Proposal
	PreviousHash identifier.Identifier
	StateHash    identifier.Identifier
}

// EventCoreHash computes the hash a subject's signature over proposal must
// commit to, given the chain's previous head event hash and the proposal's
// resulting state hash. Exported so a caller outside this package (the
// node-level request pipeline) can produce a subjectSig that Apply accepts
// without duplicating eventCore's definition.
func EventCoreHash(proposal model.Proposal, previousHash, stateHash identifier.Identifier) identifier.Identifier {
	return digest.MustOf(eventCore{Proposal: proposal, PreviousHash: previousHash, StateHash: stateHash})
}

// ExpectedGovernanceVersion returns the governance version a new proposal
// targeting subjectID must declare: the named governance subject's own
// current sn, or subjectID's own sn when subjectID is itself governance.
func (l *Ledger) ExpectedGovernanceVersion(subjectID identifier.Identifier) (uint64, error) {
	subject, err := l.readSubject(subjectID.String())
	if err != nil {
		return 0, err
	}
	if subject.IsGovernance() {
		return subject.SN, nil
	}
	govSubject, err := l.readSubject(subject.GovernanceID.String())
	if err != nil {
		return 0, fmt.Errorf("%w: governance subject: %v", ErrGovernanceMismatch, err)
	}
	return govSubject.SN, nil
}

func (l *Ledger) readSubject(subjectID string) (model.Subject, error) {
	raw, err := l.db.Get(store.SubjectKey(subjectID))
	if errors.Is(err, storage.ErrNotFound) {
		return model.Subject{}, ErrSubjectNotFound
	}
	if err != nil {
		return model.Subject{}, err
	}
	var s model.Subject
	if err := wire.Unmarshal(raw, &s); err != nil {
		return model.Subject{}, err
	}
	return s, nil
}

// HeadFor returns a subject's current (already-applied) state.
func (l *Ledger) HeadFor(subjectID identifier.Identifier) (model.Subject, error) {
	return l.readSubject(subjectID.String())
}

// GetEvent returns the event recorded at sn for subjectID.
func (l *Ledger) GetEvent(subjectID identifier.Identifier, sn uint64) (model.Event, error) {
	raw, err := l.db.Get(store.EventKey(subjectID.String(), sn))
	if errors.Is(err, storage.ErrNotFound) {
		return model.Event{}, ErrEventNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	var ev model.Event
	if err := wire.Unmarshal(raw, &ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// Range returns the contiguous events [from, to] recorded for subjectID,
// stopping early (without error) if the chain does not reach to.
func (l *Ledger) Range(subjectID identifier.Identifier, from, to uint64) ([]model.Event, error) {
	var out []model.Event
	for sn := from; sn <= to; sn++ {
		ev, err := l.GetEvent(subjectID, sn)
		if errors.Is(err, ErrEventNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// SetPreauthorized persists the opt-in follow set for subjectID.
func (l *Ledger) SetPreauthorized(subjectID identifier.Identifier, allowed []identifier.Identifier) error {
	raw, err := wire.Marshal(allowed)
	if err != nil {
		return err
	}
	return l.db.Put(store.PreauthorizedKey(subjectID.String()), raw)
}

// ListPreauthorized returns the opt-in follow set for subjectID, or an empty
// slice if none was ever set.
func (l *Ledger) ListPreauthorized(subjectID identifier.Identifier) ([]identifier.Identifier, error) {
	raw, err := l.db.Get(store.PreauthorizedKey(subjectID.String()))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []identifier.Identifier
	if err := wire.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GovernanceStateAt implements governance.HistoryReader by reading the
// snapshot this Ledger wrote the last time governanceID's own chain reached
// sn == version.
func (l *Ledger) GovernanceStateAt(governanceID identifier.Identifier, version uint64) (governance.State, error) {
	raw, err := l.db.Get(store.GovernanceSnapshotKey(governanceID.String(), version))
	if errors.Is(err, storage.ErrNotFound) {
		return governance.State{}, ErrSubjectNotFound
	}
	if err != nil {
		return governance.State{}, err
	}
	return governance.Unmarshal(raw)
}

func verifySignerAndContent(sig model.Signature, expectedContent identifier.Identifier) error {
	if !sig.ContentHash.Equal(expectedContent) {
		return fmt.Errorf("%w: signature over unexpected content", ErrSignatureInvalid)
	}
	pub, err := crypto.PublicKeyFromIdentifier(sig.Signer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !pub.Verify([]byte(sig.ContentHash), sig.Bytes) {
		return fmt.Errorf("%w: bad signature from %s", ErrSignatureInvalid, sig.Signer)
	}
	return nil
}

func tallySet(sigs []model.Signature) *model.SignatureSet {
	set := model.NewSignatureSet()
	for _, s := range sigs {
		set.Add(s)
	}
	return set
}

// Genesis applies a Create request, minting a new subject at sn 0. A
// self-governing Create (SchemaID "governance" with no GovernanceID)
// becomes its own governance subject; any other Create must name an
// existing governance subject whose schema registry recognizes SchemaID.
func (l *Ledger) Genesis(req model.Signed[model.EventRequest]) (model.Subject, model.Event, error) {
	if req.Content.Kind != model.RequestCreate || req.Content.Create == nil {
		return model.Subject{}, model.Event{}, fmt.Errorf("ledger: genesis requires a create request")
	}
	create := req.Content.Create

	ownerPub, err := crypto.PublicKeyFromIdentifier(create.PublicKey)
	if err != nil {
		return model.Subject{}, model.Event{}, fmt.Errorf("%w: owner key: %v", ErrSignatureInvalid, err)
	}
	reqHash := digest.MustOf(req.Content)
	if !req.Signature.ContentHash.Equal(reqHash) || !ownerPub.Verify([]byte(reqHash), req.Signature.Bytes) {
		return model.Subject{}, model.Event{}, ErrSignatureInvalid
	}

	subjectID := digest.MustOf(struct {
		GovernanceID identifier.Identifier
		SchemaID     string
		Namespace    string
		Owner        identifier.Identifier
	}{create.GovernanceID, create.SchemaID, create.Namespace, create.PublicKey})

	lock := l.subjectLock(subjectID.String())
	lock.Lock()
	defer lock.Unlock()

	if _, err := l.readSubject(subjectID.String()); err == nil {
		return model.Subject{}, model.Event{}, ErrSubjectExists
	} else if !errors.Is(err, ErrSubjectNotFound) {
		return model.Subject{}, model.Event{}, err
	}

	governanceID := create.GovernanceID
	selfGoverning := create.SchemaID == "governance" && governanceID.Empty()
	if selfGoverning {
		governanceID = subjectID
	}

	var initial json.RawMessage
	var govVersion uint64
	if selfGoverning {
		state := governance.DefaultGenesisState(create.PublicKey)
		initial, err = state.Marshal()
		if err != nil {
			return model.Subject{}, model.Event{}, err
		}
	} else {
		if governanceID.Empty() {
			return model.Subject{}, model.Event{}, fmt.Errorf("%w: create names no governance subject", ErrGovernanceMismatch)
		}
		govSubject, err := l.readSubject(governanceID.String())
		if err != nil {
			return model.Subject{}, model.Event{}, fmt.Errorf("%w: governance subject: %v", ErrGovernanceMismatch, err)
		}
		govVersion = govSubject.SN
		entry, _, err := l.oracle.Schema(governanceID, govVersion, create.SchemaID)
		if err != nil {
			return model.Subject{}, model.Event{}, err
		}
		initial = append(json.RawMessage(nil), entry.InitialState...)
	}

	proposal := model.Proposal{Request: req, SN: 0, GovVersion: govVersion}
	stateHash := digest.MustOf(initial)
	core := eventCore{Proposal: proposal, PreviousHash: "", StateHash: stateHash}
	eventHash := digest.MustOf(core)

	ev := model.Event{
		Proposal:         proposal,
		SubjectSignature: req.Signature,
		Accepted:         true,
		PreviousHash:     "",
		StateHash:        stateHash,
	}

	subject := model.Subject{
		SubjectID:     subjectID,
		Owner:         create.PublicKey,
		GovernanceID:  governanceID,
		SchemaID:      create.SchemaID,
		Namespace:     create.Namespace,
		State:         initial,
		SN:            0,
		HeadEventHash: eventHash,
		Lifecycle:     model.Active,
	}

	batch := l.db.NewBatch()
	subjectRaw, err := wire.Marshal(subject)
	if err != nil {
		return model.Subject{}, model.Event{}, err
	}
	eventRaw, err := wire.Marshal(ev)
	if err != nil {
		return model.Subject{}, model.Event{}, err
	}
	batch.Put(store.SubjectKey(subjectID.String()), subjectRaw)
	batch.Put(store.EventKey(subjectID.String(), 0), eventRaw)
	batch.Put(store.GovernanceIndexKey(governanceID.String(), subjectID.String()), []byte{1})
	if selfGoverning {
		batch.Put(store.GovernanceSnapshotKey(governanceID.String(), 0), initial)
	}
	if err := batch.Write(); err != nil {
		return model.Subject{}, model.Event{}, err
	}

	metrics.EventsApplied.WithLabelValues("true").Inc()
	return subject, ev, nil
}

// Apply applies a non-genesis proposal (Fact, Transfer, or EOL) to its
// subject. approved carries the Approver's Ok/Ko outcome for proposals that
// required approval (ignored otherwise); ApproverSignatures are checked
// against the Approve quorum only when approved is true, and a Ko outcome
// (approved false) skips that check. Replaying an already-applied sn is
// idempotent: it returns the stored event rather than re-effecting or
// erroring, provided the replayed request content hashes to the stored one.
func (l *Ledger) Apply(proposal model.Proposal, approved bool, subjectSig model.Signature) (model.Event, error) {
	subjectID := proposal.Request.Content.SubjectID()
	if subjectID.Empty() {
		return model.Event{}, fmt.Errorf("ledger: apply requires a subject-targeting request")
	}

	lock := l.subjectLock(subjectID.String())
	lock.Lock()
	defer lock.Unlock()

	subject, err := l.readSubject(subjectID.String())
	if err != nil {
		return model.Event{}, err
	}

	if proposal.SN <= subject.SN {
		existing, err := l.GetEvent(subjectID, proposal.SN)
		if err != nil {
			return model.Event{}, err
		}
		if !digest.MustOf(existing.Proposal.Request.Content).Equal(digest.MustOf(proposal.Request.Content)) {
			return model.Event{}, ErrPreviousHashMismatch
		}
		return existing, nil
	}
	if proposal.SN != subject.SN+1 {
		return model.Event{}, ErrSequenceGap
	}
	if subject.Lifecycle == model.EOL {
		return model.Event{}, ErrSubjectTerminal
	}

	govSubject, err := l.readSubject(subject.GovernanceID.String())
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: governance subject: %v", ErrGovernanceMismatch, err)
	}
	expectedVersion := govSubject.SN
	if subject.IsGovernance() {
		expectedVersion = subject.SN
	}
	if proposal.GovVersion != expectedVersion {
		return model.Event{}, ErrGovernanceMismatch
	}

	kind := proposal.Request.Content.Kind

	if kind == model.RequestFact {
		evalHash := proposal.Evaluation.EvaluationReqHash
		evalSigners, err := l.oracle.SignersFor(subject.GovernanceID, proposal.GovVersion, subject.SchemaID, subject.Namespace, governance.StageEvaluate)
		if err != nil {
			return model.Event{}, err
		}
		for _, sig := range proposal.EvaluatorSignatures {
			if err := verifySignerAndContent(sig, evalHash); err != nil {
				return model.Event{}, err
			}
		}
		evalQuorum, err := l.oracle.QuorumFor(subject.GovernanceID, proposal.GovVersion, subject.SchemaID, governance.StageEvaluate)
		if err != nil {
			return model.Event{}, err
		}
		if !l.oracle.CheckQuorum(evalSigners, tallySet(proposal.EvaluatorSignatures), evalQuorum) {
			metrics.QuorumRounds.WithLabelValues("evaluate", "unmet").Inc()
			return model.Event{}, ErrQuorumUnmet
		}
		metrics.QuorumRounds.WithLabelValues("evaluate", "met").Inc()

		if proposal.Evaluation.ApprovalRequired {
			// Only Ok votes are ever placed in ApproverSignatures (Ko votes
			// sign a distinct value so they can never satisfy this check);
			// the Approver actor resolves a Ko outcome itself via its own
			// Ko-side tally and passes approved=false, which skips this
			// quorum check entirely rather than failing it.
			if approved {
				proposalHash := digest.MustOf(proposal.Evaluation)
				approveSigners, err := l.oracle.SignersFor(subject.GovernanceID, proposal.GovVersion, subject.SchemaID, subject.Namespace, governance.StageApprove)
				if err != nil {
					return model.Event{}, err
				}
				for _, sig := range proposal.ApproverSignatures {
					if err := verifySignerAndContent(sig, proposalHash); err != nil {
						return model.Event{}, err
					}
				}
				approveQuorum, err := l.oracle.QuorumFor(subject.GovernanceID, proposal.GovVersion, subject.SchemaID, governance.StageApprove)
				if err != nil {
					return model.Event{}, err
				}
				if !l.oracle.CheckQuorum(approveSigners, tallySet(proposal.ApproverSignatures), approveQuorum) {
					metrics.QuorumRounds.WithLabelValues("approve", "unmet").Inc()
					return model.Event{}, ErrQuorumUnmet
				}
				metrics.QuorumRounds.WithLabelValues("approve", "met").Inc()
			}
		} else {
			approved = true
		}
	} else {
		approved = true
	}

	newState := subject.State
	stateHash := digest.MustOf(subject.State)
	if approved && kind == model.RequestFact {
		newState, err = wire.Apply(subject.State, proposal.Evaluation.Patch)
		if err != nil {
			return model.Event{}, fmt.Errorf("ledger: apply patch: %w", err)
		}
		stateHash = digest.MustOf(newState)
		if !stateHash.Equal(proposal.Evaluation.StateHash) {
			return model.Event{}, ErrStateHashMismatch
		}
	}

	signerPub, err := crypto.PublicKeyFromIdentifier(subject.Owner)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: owner key: %v", ErrSignatureInvalid, err)
	}
	core := eventCore{Proposal: proposal, PreviousHash: subject.HeadEventHash, StateHash: stateHash}
	coreHash := digest.MustOf(core)
	if !subjectSig.ContentHash.Equal(coreHash) || !signerPub.Verify([]byte(coreHash), subjectSig.Bytes) {
		return model.Event{}, ErrSignatureInvalid
	}

	ev := model.Event{
		Proposal:         proposal,
		SubjectSignature: subjectSig,
		Accepted:         approved,
		PreviousHash:     subject.HeadEventHash,
		StateHash:        stateHash,
	}

	subject.SN = proposal.SN
	subject.HeadEventHash = coreHash
	if approved {
		subject.State = newState
		switch kind {
		case model.RequestTransfer:
			// Applied atomically: the subject signature proves the current
			// owner authorized the new key in this same event, so there is
			// no intervening state in which the chain could be read with
			// an owner no longer able to sign its own events.
			subject.Owner = proposal.Request.Content.Transfer.NewPublicKey
		case model.RequestEOL:
			subject.Lifecycle = model.EOL
		}
	}

	batch := l.db.NewBatch()
	subjectRaw, err := wire.Marshal(subject)
	if err != nil {
		return model.Event{}, err
	}
	eventRaw, err := wire.Marshal(ev)
	if err != nil {
		return model.Event{}, err
	}
	batch.Put(store.SubjectKey(subjectID.String()), subjectRaw)
	batch.Put(store.EventKey(subjectID.String(), proposal.SN), eventRaw)
	if subject.IsGovernance() {
		batch.Put(store.GovernanceSnapshotKey(subject.GovernanceID.String(), subject.SN), subject.State)
	}
	if err := batch.Write(); err != nil {
		return model.Event{}, err
	}

	metrics.EventsApplied.WithLabelValues(fmt.Sprintf("%t", approved)).Inc()
	return ev, nil
}
