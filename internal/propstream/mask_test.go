package propstream_test

import (
	"testing"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/propstream"
)

func TestPropertyMaskSetClearIsSet(t *testing.T) {
	var m propstream.PropertyMask
	if !m.IsZero() {
		t.Fatal("expected zero mask initially")
	}
	m.Set(3)
	m.Set(70) // crosses into the second uint64 word
	if !m.IsSet(3) || !m.IsSet(70) {
		t.Fatal("expected bits 3 and 70 set")
	}
	if m.IsSet(4) {
		t.Fatal("bit 4 should not be set")
	}
	if m.IsZero() {
		t.Fatal("mask should not be zero")
	}
	m.Clear(3)
	if m.IsSet(3) {
		t.Fatal("bit 3 should be cleared")
	}
}

func TestPropertyMaskMerge(t *testing.T) {
	var a, b propstream.PropertyMask
	a.Set(1)
	b.Set(65)
	a.Merge(b)
	if !a.IsSet(1) || !a.IsSet(65) {
		t.Fatal("merge should union bits across words")
	}
}

func TestPropertyMaskBits(t *testing.T) {
	var m propstream.PropertyMask
	m.Set(0)
	m.Set(5)
	m.Set(200)
	got := m.Bits()
	want := []int{0, 5, 200}
	if len(got) != len(want) {
		t.Fatalf("Bits() = %v, want %v", got, want)
	}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("Bits()[%d] = %d, want %d", i, got[i], v)
		}
	}
}
