package connection

import (
	"testing"

	"github.com/AyanDgr8/wa-prod/internal/model"
)

func TestRegistry_CreateReplacesExistingEntry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	s1 := newFakeSession()
	gen1 := r.Create("tenant-a", s1)
	r.SetStatus("tenant-a", gen1, model.ConnConnected, "")

	s2 := newFakeSession()
	gen2 := r.Create("tenant-a", s2)
	if gen2 == gen1 {
		t.Fatalf("expected a fresh generation, got %d twice", gen1)
	}

	// Only one entry may exist; the old generation no longer holds.
	if r.Holds("tenant-a", gen1) {
		t.Fatalf("expected old generation to be superseded")
	}
	if !r.Holds("tenant-a", gen2) {
		t.Fatalf("expected new generation to hold")
	}
}

func TestRegistry_UsableRequiresConnectedStatus(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	gen := r.Create("tenant-a", newFakeSession())

	if r.IsUsable("tenant-a") {
		t.Fatalf("uninitialized entry must not be usable")
	}

	r.SetStatus("tenant-a", gen, model.ConnAwaitingHandshake, "qr")
	if r.IsUsable("tenant-a") {
		t.Fatalf("awaiting_handshake entry must not be usable")
	}

	r.SetStatus("tenant-a", gen, model.ConnConnected, "")
	if !r.IsUsable("tenant-a") {
		t.Fatalf("connected entry must be usable")
	}

	if _, ok := r.Session("tenant-a"); !ok {
		t.Fatalf("expected session for usable entry")
	}
}

func TestRegistry_RemoveIfGenerationGuard(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	gen := r.Create("tenant-a", newFakeSession())

	if _, ok := r.RemoveIf("tenant-a", gen+1); ok {
		t.Fatalf("wrong generation must not remove the entry")
	}
	if !r.Holds("tenant-a", gen) {
		t.Fatalf("entry should survive a stale remove")
	}

	if _, ok := r.RemoveIf("tenant-a", gen); !ok {
		t.Fatalf("matching generation should remove the entry")
	}
	if _, ok := r.Get("tenant-a"); ok {
		t.Fatalf("expected entry gone")
	}
}

func TestRegistry_SetStatusIgnoresStaleGeneration(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	gen1 := r.Create("tenant-a", newFakeSession())
	gen2 := r.Create("tenant-a", newFakeSession())

	if r.SetStatus("tenant-a", gen1, model.ConnError, "") {
		t.Fatalf("stale generation must not update status")
	}
	if !r.SetStatus("tenant-a", gen2, model.ConnConnected, "") {
		t.Fatalf("current generation should update status")
	}

	snap, _ := r.Get("tenant-a")
	if snap.Status != model.ConnConnected {
		t.Fatalf("unexpected status: %q", snap.Status)
	}
}

func TestRegistry_GetAbsentTenant(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	snap, ok := r.Get("ghost")
	if ok {
		t.Fatalf("expected absent entry")
	}
	if snap.Status != model.ConnUninitialized {
		t.Fatalf("expected uninitialized status for absent tenant, got %q", snap.Status)
	}
}
