package ident_test

import (
	"testing"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/ident"
)

func TestAllocateStartsAtSlotOne(t *testing.T) {
	p := ident.NewPool()
	id, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if id.Index() != 1 {
		t.Fatalf("first slot index = %d, want 1", id.Index())
	}
	if !id.Valid() {
		t.Fatal("expected first allocated id to be valid")
	}
}

func TestReleaseThenReallocateBumpsGeneration(t *testing.T) {
	p := ident.NewPool()
	first, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Release(first); err != nil {
		t.Fatal(err)
	}
	second, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if second.Index() != first.Index() {
		t.Fatalf("expected slot reuse, got index %d want %d", second.Index(), first.Index())
	}
	if second.Generation() == first.Generation() {
		t.Fatal("expected generation to change after reallocation")
	}
	if p.IsLive(first) {
		t.Fatal("stale identifier must not report live")
	}
	if !p.IsLive(second) {
		t.Fatal("freshly allocated identifier must report live")
	}
}

func TestNoTwoLiveIdentifiersShareIndexAndGeneration(t *testing.T) {
	p := ident.NewPool()
	seen := map[ident.ID]bool{}
	live := []ident.ID{}

	for i := range 200 {
		id, err := p.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate identifier issued: %v", id)
		}
		seen[id] = true
		live = append(live, id)

		if i%3 == 0 {
			victim := live[len(live)/2]
			if p.IsLive(victim) {
				_ = p.Release(victim)
			}
		}
	}
}

func TestReleaseInvalidIdentifierFails(t *testing.T) {
	p := ident.NewPool()
	if err := p.Release(ident.Invalid); err == nil {
		t.Fatal("expected error releasing the invalid identifier")
	}
	id, _ := p.Allocate()
	if err := p.Release(id); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(id); err == nil {
		t.Fatal("expected error on double release")
	}
}
