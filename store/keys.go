// Package store names the colon-joined key layout every component uses to
// address the shared storage.Database, and the value codec (MessagePack)
// values are stored with.
package store

import "fmt"

const snWidth = 20

// SN zero-pads a sequence number so lexicographic and numeric order agree.
func SN(sn uint64) string {
	return fmt.Sprintf("%0*d", snWidth, sn)
}

func EventKey(subjectID string, sn uint64) []byte {
	return []byte(fmt.Sprintf("event:%s:%s", subjectID, SN(sn)))
}

func EventPrefix(subjectID string) []byte {
	return []byte(fmt.Sprintf("event:%s:", subjectID))
}

func SignatureKey(subjectID string, sn uint64) []byte {
	return []byte(fmt.Sprintf("signature:%s:%s", subjectID, SN(sn)))
}

func SubjectKey(subjectID string) []byte {
	return []byte(fmt.Sprintf("subject:%s", subjectID))
}

func GovernanceIndexKey(governanceID, subjectID string) []byte {
	return []byte(fmt.Sprintf("governance-index:%s:%s", governanceID, subjectID))
}

func GovernanceIndexPrefix(governanceID string) []byte {
	return []byte(fmt.Sprintf("governance-index:%s:", governanceID))
}

func RequestKey(subjectID string) []byte {
	return []byte(fmt.Sprintf("request:%s", subjectID))
}

func ControllerIDKey() []byte {
	return []byte("controller-id")
}

func NotaryKey(subjectID string) []byte {
	return []byte(fmt.Sprintf("notary:%s", subjectID))
}

func PrevalidatedEventKey(subjectID string) []byte {
	return []byte(fmt.Sprintf("prevalidated-event:%s", subjectID))
}

func LCEValidationProofsKey(subjectID string) []byte {
	return []byte(fmt.Sprintf("lce-validation-proofs:%s", subjectID))
}

// PreauthorizedKey is additive to spec.md's listed prefixes: it persists the
// opt-in follow set for a subject across restarts.
func PreauthorizedKey(subjectID string) []byte {
	return []byte(fmt.Sprintf("preauthorized:%s", subjectID))
}

// GovernanceSnapshotKey is additive to spec.md's listed prefixes: it
// persists a governance subject's decoded State as of one of its own sn
// values, the history the Governance Oracle reads through.
func GovernanceSnapshotKey(governanceID string, version uint64) []byte {
	return []byte(fmt.Sprintf("governance-snapshot:%s:%s", governanceID, SN(version)))
}
