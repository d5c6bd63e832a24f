package awmkit

import "time"

// EvidenceRecord is one persisted row of a successful embed, or a
// clone-check-positive detect.
type EvidenceRecord struct {
	ID          int64
	FilePath    string
	RawMessage  [MessageLength]byte
	Identity    string
	KeySlot     int
	CreatedAt   time.Time
	SNRDb       *float64
	Fingerprint []byte
}

// EvidenceStore is the persistence capability set the evidence recorder and
// clone-check rely on. [[evidence_sqlite.go]] is the concrete backend.
type EvidenceStore interface {
	Insert(r EvidenceRecord) (int64, error)
	List(limit int) ([]EvidenceRecord, error)
	RemoveByIDs(ids []int64) error
	Count() (int64, error)
	// FindByIdentitySlot returns candidate rows for clone-check lookups
	//: same identity and key_slot as a fresh detection.
	FindByIdentitySlot(identity string, slot int) ([]EvidenceRecord, error)
}
