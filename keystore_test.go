package awmkit

import "testing"

func newTestKeyStore(t *testing.T) *KeyStore {
	t.Helper()
	ks, err := NewKeyStore(NewMemBackend())
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	return ks
}

func TestGenerateAndSaveSlot(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.GenerateAndSaveSlot(5, "alice"); err != nil {
		t.Fatalf("GenerateAndSaveSlot: %v", err)
	}
	exists, err := ks.ExistsSlot(5)
	if err != nil || !exists {
		t.Fatalf("ExistsSlot(5) = %v, %v; want true, nil", exists, err)
	}
	key, err := ks.LoadSlot(5)
	if err != nil {
		t.Fatalf("LoadSlot: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("key length = %d, want %d", len(key), KeySize)
	}
}

func TestGenerateAndSaveSlotAlreadyExists(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.GenerateAndSaveSlot(0, ""); err != nil {
		t.Fatalf("GenerateAndSaveSlot: %v", err)
	}
	err := ks.GenerateAndSaveSlot(0, "")
	code, ok := CodeOf(err)
	if !ok || code != CodeKeyAlreadyExists {
		t.Fatalf("second GenerateAndSaveSlot: err = %v, want KeyAlreadyExists", err)
	}
}

func TestDeleteActiveSlotFallsBackToLowestPopulated(t *testing.T) {
	ks := newTestKeyStore(t)
	for _, i := range []int{0, 2, 5} {
		if err := ks.GenerateAndSaveSlot(i, ""); err != nil {
			t.Fatalf("GenerateAndSaveSlot(%d): %v", i, err)
		}
	}
	if err := ks.SetActiveSlot(0); err != nil {
		t.Fatalf("SetActiveSlot: %v", err)
	}
	newActive, err := ks.DeleteSlot(0)
	if err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	if newActive != 2 {
		t.Errorf("new active = %d, want 2", newActive)
	}
}

func TestDeleteActiveSlotNoneLeftResetsToZero(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.GenerateAndSaveSlot(7, ""); err != nil {
		t.Fatalf("GenerateAndSaveSlot: %v", err)
	}
	if err := ks.SetActiveSlot(7); err != nil {
		t.Fatalf("SetActiveSlot: %v", err)
	}
	newActive, err := ks.DeleteSlot(7)
	if err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	if newActive != 0 {
		t.Errorf("new active = %d, want 0", newActive)
	}
}

func TestDuplicateOfSlotsSymmetricAndExcludesSelf(t *testing.T) {
	ks := newTestKeyStore(t)
	// Force two slots to share a key by writing directly through the
	// backend, bypassing GenerateAndSaveSlot's randomness.
	shared := testKey(0xAB)
	if err := ks.backend.SaveSlot(1, shared, ""); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	if err := ks.backend.SaveSlot(3, shared, ""); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	if err := ks.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	rows := ks.SummaryRows()
	if got := rows[1].DuplicateOfSlots; len(got) != 1 || got[0] != 3 {
		t.Errorf("slot 1 duplicates = %v, want [3]", got)
	}
	if got := rows[3].DuplicateOfSlots; len(got) != 1 || got[0] != 1 {
		t.Errorf("slot 3 duplicates = %v, want [1]", got)
	}
}

func TestSlotOutOfRange(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.GenerateAndSaveSlot(32, ""); err != ErrSlotOutOfRange {
		t.Errorf("GenerateAndSaveSlot(32) = %v, want ErrSlotOutOfRange", err)
	}
	if _, err := ks.LoadSlot(-1); err != ErrSlotOutOfRange {
		t.Errorf("LoadSlot(-1) = %v, want ErrSlotOutOfRange", err)
	}
}
