package awmkit

import (
	"encoding/json"
	"time"
)

// keySlotSummaryEntry is the wire shape of one row of the key-slot JSON
// summary.
type keySlotSummaryEntry struct {
	Slot             int     `json:"slot"`
	IsActive         bool    `json:"is_active"`
	HasKey           bool    `json:"has_key"`
	KeyID            *string `json:"key_id"`
	Label            *string `json:"label"`
	EvidenceCount    int     `json:"evidence_count"`
	LastEvidenceAt   *string `json:"last_evidence_at"`
	StatusText       string  `json:"status_text"`
	DuplicateOfSlots []int   `json:"duplicate_of_slots"`
}

// KeySlotSummaryJSON renders the full 32-slot table as a JSON array. It is
// a pure function of its input so two calls against an unchanged snapshot
// always agree byte-for-byte, matching a size-then-fill output contract
// without any internal state of its own.
func KeySlotSummaryJSON(rows []SlotSummary) ([]byte, error) {
	entries := make([]keySlotSummaryEntry, len(rows))
	for i, r := range rows {
		e := keySlotSummaryEntry{
			Slot:             r.Slot,
			IsActive:         r.IsActive,
			HasKey:           r.HasKey,
			EvidenceCount:    r.EvidenceCount,
			DuplicateOfSlots: r.DuplicateOfSlots,
			StatusText:       slotStatusText(r),
		}
		if r.HasKey {
			id := r.KeyID
			e.KeyID = &id
		}
		if r.Label != "" {
			label := r.Label
			e.Label = &label
		}
		if !r.LastEvidenceAt.IsZero() {
			ts := r.LastEvidenceAt.UTC().Format(time.RFC3339)
			e.LastEvidenceAt = &ts
		}
		if e.DuplicateOfSlots == nil {
			e.DuplicateOfSlots = []int{}
		}
		entries[i] = e
	}
	return json.Marshal(entries)
}

func slotStatusText(r SlotSummary) string {
	switch {
	case !r.HasKey:
		return "empty"
	case r.IsActive:
		return "active"
	default:
		return "populated"
	}
}

type evidenceListingEntry struct {
	ID        int64    `json:"id"`
	FilePath  string   `json:"file_path"`
	Identity  string   `json:"identity"`
	KeySlot   int      `json:"key_slot"`
	CreatedAt string   `json:"created_at"`
	SNRDb     *float64 `json:"snr_db"`
}

// EvidenceListingJSON renders every given evidence row as a JSON array;
// the limit is applied by the caller's EvidenceStore.List(limit).
func EvidenceListingJSON(rows []EvidenceRecord) ([]byte, error) {
	entries := make([]evidenceListingEntry, len(rows))
	for i, r := range rows {
		entries[i] = evidenceListingEntry{
			ID:        r.ID,
			FilePath:  r.FilePath,
			Identity:  r.Identity,
			KeySlot:   r.KeySlot,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
			SNRDb:     r.SNRDb,
		}
	}
	return json.Marshal(entries)
}

type tagListingEntry struct {
	Username  string `json:"username"`
	Tag       string `json:"tag"`
	CreatedAt string `json:"created_at"`
}

// TagListingJSON renders the tag catalog as a JSON array.
func TagListingJSON(rows []TagCatalogEntry) ([]byte, error) {
	entries := make([]tagListingEntry, len(rows))
	for i, r := range rows {
		entries[i] = tagListingEntry{
			Username:  r.Username,
			Tag:       r.Tag,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return json.Marshal(entries)
}
