package awmkit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBoltBackendRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "awmkit-bolt-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	backend, err := OpenBoltBackend(filepath.Join(dir, "keys.bolt"))
	if err != nil {
		t.Fatalf("OpenBoltBackend: %v", err)
	}
	defer backend.Close()

	key := testKey(0x5)
	if err := backend.SaveSlot(10, key, "bob"); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	if err := backend.SaveActive(10); err != nil {
		t.Fatalf("SaveActive: %v", err)
	}

	all, err := backend.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got, ok := all[10]
	if !ok || got.Label != "bob" || string(got.Key) != string(key) {
		t.Errorf("loaded slot 10 = %+v, ok=%v", got, ok)
	}

	active, err := backend.LoadActive()
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active != 10 {
		t.Errorf("active = %d, want 10", active)
	}

	if err := backend.DeleteSlot(10); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	all, err = backend.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := all[10]; ok {
		t.Error("slot 10 still present after delete")
	}
}

func TestBoltBackendDefaultActiveIsZero(t *testing.T) {
	dir, err := os.MkdirTemp("", "awmkit-bolt-default-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	backend, err := OpenBoltBackend(filepath.Join(dir, "keys.bolt"))
	if err != nil {
		t.Fatalf("OpenBoltBackend: %v", err)
	}
	defer backend.Close()

	active, err := backend.LoadActive()
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active != 0 {
		t.Errorf("default active = %d, want 0", active)
	}
}
