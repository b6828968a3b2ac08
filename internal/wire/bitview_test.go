package wire_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/wire"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	buf := wire.NewMessageBuffer(128)
	w := wire.NewView(buf.Bytes(), 128)

	if !w.PackAndSkip(0x1F, 5) {
		t.Fatal("pack 5 bits failed")
	}
	if !w.PackAndSkip(0xABCD, 16) {
		t.Fatal("pack 16 bits failed")
	}
	if !wire.PackBool(w, true) {
		t.Fatal("pack bool failed")
	}

	r := wire.NewView(buf.Bytes(), w.BitPosition())
	v1, ok := r.UnpackAndSkip(5)
	if !ok || v1 != 0x1F {
		t.Fatalf("unpack 5 bits = %d, %v", v1, ok)
	}
	v2, ok := r.UnpackAndSkip(16)
	if !ok || v2 != 0xABCD {
		t.Fatalf("unpack 16 bits = %d, %v", v2, ok)
	}
	v3, ok := wire.UnpackBool(r)
	if !ok || !v3 {
		t.Fatalf("unpack bool = %v, %v", v3, ok)
	}
	if !r.TrailingPaddingValid() {
		t.Fatalf("expected <8 trailing bits, got %d", r.BitsRemaining())
	}
}

func TestUnpackPastEndFails(t *testing.T) {
	buf := make([]byte, 1)
	v := wire.NewView(buf, 4)
	if _, ok := v.UnpackAndSkip(5); ok {
		t.Fatal("expected failure reading past view end")
	}
}

func TestPackGUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	buf := wire.NewMessageBuffer(wire.BitsGUID)
	w := wire.NewView(buf.Bytes(), wire.BitsGUID)
	if !wire.PackGUID(w, id) {
		t.Fatal("pack GUID failed")
	}
	r := wire.NewView(buf.Bytes(), wire.BitsGUID)
	got, ok := wire.UnpackGUID(r)
	if !ok || got != id {
		t.Fatalf("GUID round trip mismatch: got %s want %s", got, id)
	}
}

func TestPackStringRoundTrip(t *testing.T) {
	s := "hello, host"
	buf := wire.NewMessageBuffer(wire.DynamicStringBits(s))
	w := wire.NewView(buf.Bytes(), wire.DynamicStringBits(s))
	if !wire.PackString(w, s) {
		t.Fatal("pack string failed")
	}
	r := wire.NewView(buf.Bytes(), w.BitPosition())
	got, ok := wire.UnpackString(r)
	if !ok || got != s {
		t.Fatalf("string round trip mismatch: got %q want %q", got, s)
	}
}

func TestBitsForMaxValue(t *testing.T) {
	cases := map[uint64]int{0: 1, 1: 1, 2: 2, 3: 2, 4: 3, 255: 8, 256: 9}
	for in, want := range cases {
		if got := wire.BitsForMaxValue(in); got != want {
			t.Errorf("BitsForMaxValue(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSequenceNumberWidth(t *testing.T) {
	// Canonical "A is newer than B" rule lives in propstream, but the
	// sequence width constant is defined here; sanity check the constant.
	if wire.BitsSequenceNumber != 16 {
		t.Fatalf("expected 16-bit sequence numbers, got %d", wire.BitsSequenceNumber)
	}
}
